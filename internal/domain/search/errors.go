package search

import "errors"

var (
	// ErrInvalidRange is returned when low is greater than high
	ErrInvalidRange = errors.New("invalid status range")

	// ErrUnknownClass is returned for error classes other than 4xx and 5xx
	ErrUnknownClass = errors.New("unknown error class")

	// ErrInvalidDuration is returned for non-positive windows
	ErrInvalidDuration = errors.New("duration must be positive")

	// ErrInvalidFilter is returned when a filter does not compile to a boolean
	ErrInvalidFilter = errors.New("invalid filter")
)
