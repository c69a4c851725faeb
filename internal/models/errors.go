package models

import "errors"

// Shared error kinds; wrap with context, match with errors.Is.
// Forbidden is deliberately distinct from NotFound: owners may learn that a
// tracker id exists, but never touch someone else's.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("tracker not found")
	ErrForbidden    = errors.New("tracker belongs to another owner")
)
