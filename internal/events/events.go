package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Publisher defines the broker-agnostic publish operations used by the app.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Event is the payload published on note lifecycle changes.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	NoteID     int       `json:"note_id,omitempty"`
	UserID     int       `json:"user_id,omitempty"`
	Purged     int64     `json:"purged,omitempty"`
}

const (
	TypeNoteTrashed  = "note.trashed"
	TypeNoteRestored = "note.restored"
	TypeNotePurged   = "note.purged"
	TypeSweepDone    = "trash.sweep"
)

// Bus publishes lifecycle events to a single channel. Publishing is best
// effort: failures are logged and never propagated to the caller, so a
// broker outage cannot fail a user request or a sweep. A nil *Bus is valid
// and publishes nothing.
type Bus struct {
	backend Publisher
	channel string
	logger  *slog.Logger
}

// NewBus constructs a Bus for the provided backend and channel.
func NewBus(backend Publisher, channel string, logger *slog.Logger) *Bus {
	return &Bus{
		backend: backend,
		channel: channel,
		logger:  logger,
	}
}

// Emit publishes a single event.
func (b *Bus) Emit(ctx context.Context, event Event) {
	if b == nil || b.backend == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to encode event", "type", event.Type, "error", err)
		return
	}

	attrs := map[string]string{"type": event.Type}
	if _, err := b.backend.Publish(ctx, b.channel, data, attrs); err != nil {
		b.logger.Error("failed to publish event", "type", event.Type, "error", err)
	}
}

// Close closes the underlying backend.
func (b *Bus) Close() error {
	if b == nil || b.backend == nil {
		return nil
	}
	return b.backend.Close()
}
