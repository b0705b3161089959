package services

import "errors"

// ErrForbidden is returned when a caller attempts to act on a note owned
// by another user.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidInput is returned when a request is structurally valid but
// violates a domain rule, e.g. empty note content or an archive of a
// trashed note.
var ErrInvalidInput = errors.New("invalid input")
