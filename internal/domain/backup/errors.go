package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrIOFailure marks a missing, unreadable or unwritable path
	ErrIOFailure = errors.New("io failure")

	// ErrNoSnapshot is returned when no snapshot is retained for a path
	ErrNoSnapshot = errors.New("no snapshot for path")

	// ErrRestoreFailed marks a restore that did not write the snapshot back;
	// the snapshot is then the only copy of the original content
	ErrRestoreFailed = errors.New("restore failed")

	// ErrCorruptSnapshot is returned when persisted content no longer matches its checksum
	ErrCorruptSnapshot = errors.New("snapshot checksum mismatch")
)

// IOError describes a failed filesystem operation on a path.
// errors.Is(err, ErrIOFailure) holds for every IOError.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIOFailure }

func ioError(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}
