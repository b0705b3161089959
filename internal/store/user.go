package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/securenotes/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, photo_key, reset_token, reset_token_expires_at, created_at, updated_at`

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.PhotoKey,
		&user.ResetToken,
		&user.ResetTokenExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) GetByResetToken(ctx context.Context, token string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE reset_token = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, token))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (email, password_hash, photo_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.PhotoKey,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// SetResetToken stores a pending password-reset token and its expiry,
// replacing any previous one.
func (r *UserRepository) SetResetToken(ctx context.Context, id int, token string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET reset_token = $1,
			reset_token_expires_at = $2,
			updated_at = $3
		WHERE id = $4`
	return r.execExpectingRow(ctx, query, token, expiresAt, time.Now(), id)
}

// UpdatePassword replaces the password hash and clears any pending reset
// token, making reset tokens single use.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			reset_token = NULL,
			reset_token_expires_at = NULL,
			updated_at = $2
		WHERE id = $3`
	return r.execExpectingRow(ctx, query, passwordHash, time.Now(), id)
}

// SetPhotoKey records the object storage key of the user's profile photo.
func (r *UserRepository) SetPhotoKey(ctx context.Context, id int, key string) error {
	const query = `
		UPDATE users
		SET photo_key = $1,
			updated_at = $2
		WHERE id = $3`
	return r.execExpectingRow(ctx, query, key, time.Now(), id)
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	return r.execExpectingRow(ctx, query, id)
}

func (r *UserRepository) execExpectingRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
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
