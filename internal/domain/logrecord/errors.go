package logrecord

import (
	"errors"
	"fmt"
)

var (
	// ErrParseFailure marks a log line that could not be decoded
	ErrParseFailure = errors.New("parse failure")

	// ErrInvalidRecord marks a record that breaks the data model invariants
	ErrInvalidRecord = errors.New("invalid record")
)

// rawLimit bounds how much of a bad line is kept for reporting
const rawLimit = 200

// ParseFailure reports one undecodable line. Line and Offset are filled in
// by readers that know the position; Decode alone leaves them zero.
// errors.Is(err, ErrParseFailure) holds for every ParseFailure.
type ParseFailure struct {
	Line   int
	Offset int64
	Raw    string
	Err    error
}

func (e *ParseFailure) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d (offset %d): %v", e.Line, e.Offset, e.Err)
	}
	return fmt.Sprintf("parse log line: %v", e.Err)
}

func (e *ParseFailure) Unwrap() error { return e.Err }

func (e *ParseFailure) Is(target error) bool { return target == ErrParseFailure }

func parseFailure(raw []byte, err error) *ParseFailure {
	if len(raw) > rawLimit {
		raw = raw[:rawLimit]
	}
	return &ParseFailure{Raw: string(raw), Err: err}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
}
