package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/securenotes/apiserver/internal/events"
	"github.com/securenotes/apiserver/types"
)

const defaultNoteColor = "#ffffff"

// NoteRepository defines persistence operations for notes.
type NoteRepository interface {
	Get(ctx context.Context, id int) (types.Note, error)
	ListByOwner(ctx context.Context, ownerID int, state string) ([]types.Note, error)
	Create(ctx context.Context, note types.Note) (types.Note, error)
	Update(ctx context.Context, note types.Note) (types.Note, error)
	Delete(ctx context.Context, id int) error
	DeleteExpiredTrashed(ctx context.Context, cutoff time.Time) (int64, error)
}

// CreateNoteInput carries the caller-supplied fields for a new note. The
// owner never comes from the payload, it is derived from the session.
type CreateNoteInput struct {
	Title   string
	Content string
	Color   string
	Label   string
}

// NotePatch carries a partial update. Nil fields are left untouched.
// Lifecycle flags are not patchable, they change only through the
// dedicated transitions.
type NotePatch struct {
	Title   *string
	Content *string
	Color   *string
	Label   *string
}

// NoteService is the note lifecycle engine. It enforces ownership and the
// valid transitions between the active, archived and trashed states on
// every mutation.
type NoteService struct {
	repo NoteRepository
	bus  *events.Bus
	now  func() time.Time
}

func NewNoteService(repo NoteRepository, bus *events.Bus) *NoteService {
	return &NoteService{
		repo: repo,
		bus:  bus,
		now:  time.Now,
	}
}

func (s *NoteService) ListActive(ctx context.Context, ownerID int) ([]types.Note, error) {
	return s.repo.ListByOwner(ctx, ownerID, types.NoteStateActive)
}

func (s *NoteService) ListArchived(ctx context.Context, ownerID int) ([]types.Note, error) {
	return s.repo.ListByOwner(ctx, ownerID, types.NoteStateArchived)
}

func (s *NoteService) ListTrashed(ctx context.Context, ownerID int) ([]types.Note, error) {
	return s.repo.ListByOwner(ctx, ownerID, types.NoteStateTrashed)
}

// Create stores a new note in the active state, owned by the caller.
func (s *NoteService) Create(ctx context.Context, ownerID int, input CreateNoteInput) (types.Note, error) {
	if strings.TrimSpace(input.Content) == "" {
		return types.Note{}, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}

	color := input.Color
	if strings.TrimSpace(color) == "" {
		color = defaultNoteColor
	}

	return s.repo.Create(ctx, types.Note{
		UserID:  ownerID,
		Title:   strings.TrimSpace(input.Title),
		Content: input.Content,
		Color:   color,
		Label:   strings.TrimSpace(input.Label),
	})
}

// Update applies a field patch to a note owned by the caller.
func (s *NoteService) Update(ctx context.Context, ownerID, id int, patch NotePatch) (types.Note, error) {
	note, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return types.Note{}, err
	}

	if patch.Title != nil {
		note.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Content != nil {
		if strings.TrimSpace(*patch.Content) == "" {
			return types.Note{}, fmt.Errorf("%w: content is required", ErrInvalidInput)
		}
		note.Content = *patch.Content
	}
	if patch.Color != nil {
		note.Color = *patch.Color
		if strings.TrimSpace(note.Color) == "" {
			note.Color = defaultNoteColor
		}
	}
	if patch.Label != nil {
		note.Label = strings.TrimSpace(*patch.Label)
	}

	return s.repo.Update(ctx, note)
}

// Archive moves an active note to the archived state.
func (s *NoteService) Archive(ctx context.Context, ownerID, id int) (types.Note, error) {
	return s.setArchived(ctx, ownerID, id, true)
}

// Unarchive moves an archived note back to the active state.
func (s *NoteService) Unarchive(ctx context.Context, ownerID, id int) (types.Note, error) {
	return s.setArchived(ctx, ownerID, id, false)
}

func (s *NoteService) setArchived(ctx context.Context, ownerID, id int, archived bool) (types.Note, error) {
	note, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return types.Note{}, err
	}
	if note.IsTrashed {
		return types.Note{}, fmt.Errorf("%w: note is in the trash", ErrInvalidInput)
	}

	note.IsArchived = archived
	return s.repo.Update(ctx, note)
}

// Trash soft-deletes a note, stamping the time it entered the trash.
func (s *NoteService) Trash(ctx context.Context, ownerID, id int) (types.Note, error) {
	note, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return types.Note{}, err
	}
	if note.IsTrashed {
		return types.Note{}, fmt.Errorf("%w: note is already in the trash", ErrInvalidInput)
	}

	trashedAt := s.now()
	note.IsTrashed = true
	note.TrashedAt = &trashedAt

	updated, err := s.repo.Update(ctx, note)
	if err != nil {
		return types.Note{}, err
	}

	s.bus.Emit(ctx, events.Event{Type: events.TypeNoteTrashed, NoteID: id, UserID: ownerID})
	return updated, nil
}

// Restore moves a trashed note back to the active state. A note that was
// archived before it was trashed restores to active, not archived.
func (s *NoteService) Restore(ctx context.Context, ownerID, id int) (types.Note, error) {
	note, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return types.Note{}, err
	}
	if !note.IsTrashed {
		return types.Note{}, fmt.Errorf("%w: note is not in the trash", ErrInvalidInput)
	}

	note.IsTrashed = false
	note.IsArchived = false
	note.TrashedAt = nil

	updated, err := s.repo.Update(ctx, note)
	if err != nil {
		return types.Note{}, err
	}

	s.bus.Emit(ctx, events.Event{Type: events.TypeNoteRestored, NoteID: id, UserID: ownerID})
	return updated, nil
}

// Purge permanently removes a note. There is no recovery path.
func (s *NoteService) Purge(ctx context.Context, ownerID, id int) error {
	if _, err := s.getOwned(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.bus.Emit(ctx, events.Event{Type: events.TypeNotePurged, NoteID: id, UserID: ownerID})
	return nil
}

// getOwned loads a note and verifies the caller owns it. Ownership is
// re-checked on every mutation rather than trusted from earlier reads.
func (s *NoteService) getOwned(ctx context.Context, ownerID, id int) (types.Note, error) {
	note, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Note{}, err
	}
	if note.UserID != ownerID {
		return types.Note{}, ErrForbidden
	}
	return note, nil
}
