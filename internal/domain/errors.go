package domain

import "errors"

// Sentinel errors for the domain layer. Every error returned by the core wraps
// exactly one of these so callers can branch with errors.Is.
var (
	ErrNotFound           = errors.New("domain: not found")
	ErrConflict           = errors.New("domain: conflict")
	ErrUnauthenticated    = errors.New("domain: unauthenticated")
	ErrUnauthorized       = errors.New("domain: unauthorized")
	ErrInvalidTransition  = errors.New("domain: invalid status transition")
	ErrInvalidEventType   = errors.New("domain: invalid event type")
	ErrBackendUnavailable = errors.New("domain: backend unavailable")
	ErrValidation         = errors.New("domain: validation failed")
	ErrTimeout            = errors.New("domain: backend timeout")
)
