package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrConstraintViolation is returned when a write breaks a schema constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrDatabaseLocked is returned when a write could not acquire the database lock.
	ErrDatabaseLocked = errors.New("persistence: database locked")
)
