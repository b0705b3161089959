package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/securenotes/apiserver/internal/events"
)

// TrashPurger is the slice of the note store the reaper needs.
type TrashPurger interface {
	DeleteExpiredTrashed(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reaper periodically purges trashed notes whose retention window has
// elapsed. The sweep is a single bulk delete across all users and is
// idempotent, so a failed run is simply retried at the next firing.
type Reaper struct {
	notes     TrashPurger
	bus       *events.Bus
	logger    *slog.Logger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

func NewReaper(notes TrashPurger, bus *events.Bus, logger *slog.Logger, retention, interval time.Duration) *Reaper {
	return &Reaper{
		notes:     notes,
		bus:       bus,
		logger:    logger,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// Run sweeps once immediately and then on every interval tick until the
// context is cancelled. Sweep failures are logged and do not stop the loop.
func (r *Reaper) Run(ctx context.Context) {
	if _, err := r.Sweep(ctx); err != nil {
		r.logger.Error("trash sweep failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("trash sweep failed", "error", err)
			}
		}
	}
}

// Sweep purges every trashed note older than the retention window and
// returns the number of notes removed.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.retention)

	purged, err := r.notes.DeleteExpiredTrashed(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	r.logger.Info("trash sweep complete", "purged", purged, "cutoff", cutoff)
	if purged > 0 {
		r.bus.Emit(ctx, events.Event{Type: events.TypeSweepDone, Purged: purged})
	}
	return purged, nil
}
