package application

import "errors"

var (
	// ErrPersistence wraps store failures that abort a device sync.
	ErrPersistence = errors.New("application: persistence failure")
	// ErrConfiguration is returned when the declared configuration cannot be reconciled.
	ErrConfiguration = errors.New("application: configuration failure")
	// ErrNoDevices is returned when reconciliation yields no active devices at startup.
	ErrNoDevices = errors.New("application: no active devices")
	// ErrNotFound is returned when a requested device or branch does not exist.
	ErrNotFound = errors.New("application: not found")
)
