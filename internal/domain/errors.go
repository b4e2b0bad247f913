package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound          = errors.New("domain: not found")
	ErrConflict          = errors.New("domain: conflict")
	ErrUnavailable       = errors.New("domain: database unavailable")
	ErrBootstrap         = errors.New("domain: schema bootstrap failed")
	ErrUnknownRecurrence = errors.New("domain: unknown recurrence type")
	ErrInvalidInterval   = errors.New("domain: recurrence interval must be positive")
	ErrLocked            = errors.New("domain: run already in progress")
)
