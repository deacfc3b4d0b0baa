package logstore

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/backup"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
)

// Entry is a decoded record and where it was read from
type Entry struct {
	Record logrecord.Record
	Position
}

// Records replays the whole file from the start. Undecodable lines are
// yielded as *logrecord.ParseFailure errors; any other error ends the
// sequence. Each call starts a fresh pass.
func (s *Store) Records() iter.Seq2[logrecord.Record, error] {
	return func(yield func(logrecord.Record, error) bool) {
		for e, err := range s.Scan(0) {
			if !yield(e.Record, err) {
				return
			}
		}
	}
}

// Scan replays the file from byte offset from, which must be a line start.
// A trailing line without a newline is decoded like any other.
func (s *Store) Scan(from int64) iter.Seq2[Entry, error] {
	return s.scan(from, false)
}

// Tail is Scan for followers: it stops before a trailing line that has no
// newline yet, so the next Tail can pick it up once complete.
func (s *Store) Tail(from int64) iter.Seq2[Entry, error] {
	return s.scan(from, true)
}

// LoadAll materializes the whole file. Parse failures are collected, not
// returned as the error.
func (s *Store) LoadAll() ([]logrecord.Record, []*logrecord.ParseFailure, error) {
	var (
		records  []logrecord.Record
		failures []*logrecord.ParseFailure
	)
	for rec, err := range s.Records() {
		var pf *logrecord.ParseFailure
		switch {
		case err == nil:
			records = append(records, rec)
		case errors.As(err, &pf):
			failures = append(failures, pf)
		default:
			return records, failures, err
		}
	}
	return records, failures, nil
}

func (s *Store) scan(from int64, stopAtPartial bool) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		f, err := os.Open(s.path)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			yield(Entry{}, &backup.IOError{Op: "read", Path: s.path, Err: err})
			return
		}
		defer f.Close()

		if from > 0 {
			if _, err := f.Seek(from, io.SeekStart); err != nil {
				yield(Entry{}, &backup.IOError{Op: "seek", Path: s.path, Err: err})
				return
			}
		}

		limit := s.codec.MaxLineBytes() + 2
		r := bufio.NewReaderSize(f, max(limit, 64*1024))
		offset := from
		lineNo := 0

		for {
			line, size, complete, err := readLine(r, limit)
			if size == 0 && err == io.EOF {
				return
			}
			if err != nil && err != io.EOF {
				yield(Entry{}, &backup.IOError{Op: "read", Path: s.path, Err: err})
				return
			}
			if !complete && stopAtPartial {
				return
			}

			pos := Position{Offset: offset, Size: size}
			offset += int64(size)
			lineNo++

			if line != nil && len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			var decodeErr error
			var rec logrecord.Record
			if line == nil {
				decodeErr = fmt.Errorf("line exceeds %d bytes", limit)
			} else {
				rec, decodeErr = s.codec.Decode(line)
			}
			if decodeErr != nil {
				pf := asFailure(decodeErr, line)
				pf.Line = lineNo
				pf.Offset = pos.Offset
				s.metrics.IncParseFailures()
				s.logger.Warn("Skipping malformed log line",
					zap.String("path", s.path),
					zap.Int("line", pf.Line),
					zap.Int64("offset", pf.Offset),
					zap.Error(pf.Err))
				if !yield(Entry{Position: pos}, pf) {
					return
				}
				continue
			}

			if !yield(Entry{Record: rec, Position: pos}, nil) {
				return
			}
			if err == io.EOF {
				return
			}
		}
	}
}

// readLine returns the next line without its newline, the number of bytes
// consumed, and whether the line was newline-terminated. A line longer than
// limit is consumed entirely but returned as nil.
func readLine(r *bufio.Reader, limit int) (line []byte, size int, complete bool, err error) {
	var buf []byte
	oversized := false

	for {
		chunk, err := r.ReadSlice('\n')
		size += len(chunk)
		if !oversized {
			if len(buf)+len(chunk) > limit {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case err == nil:
			if oversized {
				return nil, size, true, nil
			}
			return buf[:len(buf)-1], size, true, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == io.EOF:
			if oversized {
				return nil, size, false, io.EOF
			}
			return buf, size, false, io.EOF
		default:
			return nil, size, false, err
		}
	}
}

func asFailure(err error, line []byte) *logrecord.ParseFailure {
	var pf *logrecord.ParseFailure
	if errors.As(err, &pf) {
		return pf
	}
	raw := line
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return &logrecord.ParseFailure{Raw: string(raw), Err: err}
}
