package domain

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrConflict              = errors.New("conflict")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrDuplicateEvent        = errors.New("event already recorded")
	ErrMalformedEvent        = errors.New("malformed event")
	ErrEventRejected         = errors.New("event rejected")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
