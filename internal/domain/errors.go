package domain

import "errors"

// Domain errors
var (
	ErrSkaterNotFound = errors.New("skater not found")
	ErrBadgeNotFound  = errors.New("badge not found")
	ErrSkaterExists   = errors.New("skater already exists")
	ErrBadgeExists    = errors.New("badge already exists")
	ErrInvalidAction  = errors.New("invalid action kind")
	ErrInvalidBadge   = errors.New("invalid badge definition")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSkaterNotFound) || errors.Is(err, ErrBadgeNotFound)
}
