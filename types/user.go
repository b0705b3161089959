package types

import "time"

// User represents an account in the system.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the unique address the user registers and logs in with.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// PhotoKey is the object storage key of the user's profile photo,
	// empty when no photo has been uploaded.
	PhotoKey string `json:"-" db:"photo_key"`

	// ResetToken is the pending password-reset token, nil when no reset
	// has been requested. It is single use and cleared on a successful
	// reset.
	ResetToken *string `json:"-" db:"reset_token"`

	// ResetTokenExpiresAt is the expiry of ResetToken. It is non-nil
	// exactly when ResetToken is non-nil.
	ResetTokenExpiresAt *time.Time `json:"-" db:"reset_token_expires_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
