package inject

import (
	"errors"
	"fmt"
)

var (
	// ErrInjectionRejected marks a write that failed post-write validation
	// and was rolled back
	ErrInjectionRejected = errors.New("injection rejected")

	// ErrMarkerNotFound is returned by Remove when the file has no such block
	ErrMarkerNotFound = errors.New("marker not found")

	// ErrInvalidMarker is returned for marker names outside [A-Za-z0-9_.-]+
	ErrInvalidMarker = errors.New("invalid marker name")

	// ErrReservedText is returned when a payload contains marker lines
	ErrReservedText = errors.New("payload contains reserved marker text")

	// ErrUnsupportedFile is returned for binary, non-UTF-8 or unknown file types
	ErrUnsupportedFile = errors.New("unsupported file")

	// ErrMalformedBlock is returned when existing marker lines do not pair up
	ErrMalformedBlock = errors.New("malformed injection block")

	// ErrAnchorNotFound is returned by a Positioner that cannot place a block
	ErrAnchorNotFound = errors.New("anchor not found")
)

// RejectionError describes a rolled back injection.
// errors.Is(err, ErrInjectionRejected) holds for every RejectionError.
type RejectionError struct {
	Path   string
	Marker string
	Reason error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("injection of %q into %s rejected: %v", e.Marker, e.Path, e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.Reason }

func (e *RejectionError) Is(target error) bool { return target == ErrInjectionRejected }

// ValidationError locates the first shallow syntax problem in a file
type ValidationError struct {
	Line   int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}
