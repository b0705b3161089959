package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/securenotes/apiserver/types"
)

// NoteRepository handles persistence for notes.
type NoteRepository struct {
	db *sql.DB
}

func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

const noteColumns = `id, user_id, title, content, color, label, is_archived, is_trashed, trashed_at, created_at, updated_at`

func scanNote(scan func(dest ...any) error) (types.Note, error) {
	var note types.Note
	err := scan(
		&note.ID,
		&note.UserID,
		&note.Title,
		&note.Content,
		&note.Color,
		&note.Label,
		&note.IsArchived,
		&note.IsTrashed,
		&note.TrashedAt,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	return note, err
}

func (r *NoteRepository) Get(ctx context.Context, id int) (types.Note, error) {
	const query = `
		SELECT ` + noteColumns + `
		FROM notes
		WHERE id = $1`
	note, err := scanNote(r.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Note{}, ErrNotFound
		}
		return types.Note{}, err
	}
	return note, nil
}

// ListByOwner returns the owner's notes in the given lifecycle state.
// Active and archived notes are ordered by last modification, trashed notes
// by the time they were trashed.
func (r *NoteRepository) ListByOwner(ctx context.Context, ownerID int, state string) ([]types.Note, error) {
	var query string
	switch state {
	case types.NoteStateArchived:
		query = `
			SELECT ` + noteColumns + `
			FROM notes
			WHERE user_id = $1 AND is_archived = TRUE AND is_trashed = FALSE
			ORDER BY updated_at DESC`
	case types.NoteStateTrashed:
		query = `
			SELECT ` + noteColumns + `
			FROM notes
			WHERE user_id = $1 AND is_trashed = TRUE
			ORDER BY trashed_at DESC`
	default:
		query = `
			SELECT ` + noteColumns + `
			FROM notes
			WHERE user_id = $1 AND is_archived = FALSE AND is_trashed = FALSE
			ORDER BY updated_at DESC`
	}

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := make([]types.Note, 0)
	for rows.Next() {
		note, err := scanNote(rows.Scan)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return notes, nil
}

func (r *NoteRepository) Create(ctx context.Context, note types.Note) (types.Note, error) {
	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	const query = `
		INSERT INTO notes (user_id, title, content, color, label, is_archived, is_trashed, trashed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		note.UserID,
		note.Title,
		note.Content,
		note.Color,
		note.Label,
		note.IsArchived,
		note.IsTrashed,
		note.TrashedAt,
		note.CreatedAt,
		note.UpdatedAt,
	).Scan(&note.ID); err != nil {
		return types.Note{}, err
	}

	return note, nil
}

// Update persists the mutable fields of a note. The owner is deliberately
// not part of the SET list, the user_id column is immutable after creation.
func (r *NoteRepository) Update(ctx context.Context, note types.Note) (types.Note, error) {
	note.UpdatedAt = time.Now()

	const query = `
		UPDATE notes
		SET title = $1,
			content = $2,
			color = $3,
			label = $4,
			is_archived = $5,
			is_trashed = $6,
			trashed_at = $7,
			updated_at = $8
		WHERE id = $9`
	result, err := r.db.ExecContext(
		ctx,
		query,
		note.Title,
		note.Content,
		note.Color,
		note.Label,
		note.IsArchived,
		note.IsTrashed,
		note.TrashedAt,
		note.UpdatedAt,
		note.ID,
	)
	if err != nil {
		return types.Note{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Note{}, err
	}
	if affected == 0 {
		return types.Note{}, ErrNotFound
	}

	return note, nil
}

func (r *NoteRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM notes WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredTrashed purges every trashed note whose trashed_at is at or
// before the cutoff, across all users. It returns the number of purged
// notes and is idempotent: a second run with the same cutoff deletes
// nothing further.
func (r *NoteRepository) DeleteExpiredTrashed(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		DELETE FROM notes
		WHERE is_trashed = TRUE AND trashed_at <= $1`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
