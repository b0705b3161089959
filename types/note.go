package types

import "time"

// Note states derived from the lifecycle flags. A note is active when it is
// neither archived nor trashed, archived when is_archived is set and it is
// not trashed, and trashed when is_trashed is set regardless of the archive
// flag.
const (
	NoteStateActive   = "active"
	NoteStateArchived = "archived"
	NoteStateTrashed  = "trashed"
)

// Note represents a single note owned by a user.
type Note struct {
	// ID is the unique identifier of the note.
	ID int `json:"id" db:"id"`

	// UserID is the identifier of the owning user. It is set at creation
	// and never reassigned.
	UserID int `json:"user_id" db:"user_id"`

	// Title is an optional short heading for the note.
	Title string `json:"title" db:"title"`

	// Content is the body of the note. It is required and non-empty.
	Content string `json:"content" db:"content"`

	// Color is a display tag for the note card, e.g. "#ffffff".
	Color string `json:"color" db:"color"`

	// Label is an optional free-form label used for grouping notes.
	Label string `json:"label" db:"label"`

	// IsArchived marks the note as hidden from the main list but retained.
	IsArchived bool `json:"is_archived" db:"is_archived"`

	// IsTrashed marks the note as soft deleted. Trashed notes are purged
	// permanently once the retention window elapses.
	IsTrashed bool `json:"is_trashed" db:"is_trashed"`

	// TrashedAt is the time the note was moved to the trash. It is non-nil
	// exactly when IsTrashed is true.
	TrashedAt *time.Time `json:"trashed_at,omitempty" db:"trashed_at"`

	// CreatedAt is the timestamp at which the note was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the note.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// State reports the lifecycle state of the note.
func (n Note) State() string {
	switch {
	case n.IsTrashed:
		return NoteStateTrashed
	case n.IsArchived:
		return NoteStateArchived
	default:
		return NoteStateActive
	}
}
