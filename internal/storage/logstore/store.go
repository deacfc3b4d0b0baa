package logstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/backup"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/logging"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/api-diagnostics/internal/shared/utils"
)

var (
	// ErrClosed is returned by Append after Close
	ErrClosed = errors.New("log store closed")

	// ErrReadOnly is returned by Append on a store opened for reading
	ErrReadOnly = errors.New("log store opened read-only")
)

// Position locates one line in the file
type Position struct {
	Offset int64 // first byte of the line
	Size   int   // including the newline
}

// End returns the offset just past the line
func (p Position) End() int64 { return p.Offset + int64(p.Size) }

// Store is one append-only log file
type Store struct {
	path     string
	codec    *logrecord.Codec
	sync     bool
	readOnly bool
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// Option configures a Store
type Option func(*Store)

// WithCodec sets the line codec
func WithCodec(c *logrecord.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithSync fsyncs after every append
func WithSync(enabled bool) Option {
	return func(s *Store) { s.sync = enabled }
}

// ReadOnly opens the store for queries only: nothing is created on disk and
// Append fails
func ReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Open prepares the log file at path, creating it and its directory if needed
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		codec:  logrecord.NewCodec(),
		sync:   true,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.readOnly {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &backup.IOError{Op: "open", Path: path, Err: err}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &backup.IOError{Op: "open", Path: path, Err: err}
	}
	s.file = f

	if err := s.terminateTornTail(); err != nil {
		f.Close()
		return nil, &backup.IOError{Op: "open", Path: path, Err: err}
	}

	s.logger.Debug("Log store opened", zap.String("path", path), zap.Bool("sync", s.sync))
	return s, nil
}

// terminateTornTail ends a line left without its newline by a writer that
// died mid-write, so the next record starts on a line of its own. The torn
// fragment stays in the file and decodes as a parse failure.
func (s *Store) terminateTornTail() error {
	r, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer r.Close()

	info, err := r.Stat()
	if err != nil || info.Size() == 0 {
		return err
	}
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}

	if _, err := s.file.Write([]byte{'\n'}); err != nil {
		return err
	}
	s.logger.Warn("Terminated torn trailing line", zap.String("path", s.path), zap.Int64("offset", info.Size()))
	return nil
}

// Path returns the log file location
func (s *Store) Path() string { return s.path }

// Codec returns the line codec
func (s *Store) Codec() *logrecord.Codec { return s.codec }

// Append encodes r and writes it as one line with a single write call.
// The returned Position is where the line landed.
func (s *Store) Append(r logrecord.Record) (Position, error) {
	line, err := s.codec.Encode(r)
	if err != nil {
		s.metrics.IncAppendErrors()
		return Position{}, err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly {
		return Position{}, ErrReadOnly
	}
	if s.closed {
		return Position{}, ErrClosed
	}

	n, err := s.file.Write(line)
	if err == nil && n != len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.metrics.IncAppendErrors()
		s.logger.Error("Append failed",
			zap.String("path", s.path),
			zap.String("correlation_id", r.CorrelationID),
			zap.Error(err))
		return Position{}, &backup.IOError{Op: "append", Path: s.path, Err: err}
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			s.metrics.IncAppendErrors()
			return Position{}, &backup.IOError{Op: "sync", Path: s.path, Err: err}
		}
	}

	// With O_APPEND the descriptor offset sits right after our own write
	end, err := s.file.Seek(0, io.SeekCurrent)
	if err != nil {
		end = -1
	}

	s.metrics.IncAppended()
	return Position{Offset: end - int64(len(line)), Size: len(line)}, nil
}

// Close releases the write descriptor
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Size returns the current file length
func (s *Store) Size() (int64, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, &backup.IOError{Op: "stat", Path: s.path, Err: err}
	}
	return info.Size(), nil
}

// HeadHash hashes the first n bytes of the file. Together with n it
// identifies the file across restarts: a rotated or rewritten log has a
// different head.
func (s *Store) HeadHash(n int64) (string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return "", &backup.IOError{Op: "read", Path: s.path, Err: err}
	}
	defer f.Close()

	sum, err := utils.DefaultHasher().HashReader(io.LimitReader(f, n))
	if err != nil {
		return "", &backup.IOError{Op: "read", Path: s.path, Err: err}
	}
	return sum, nil
}

// Stats summarizes the file for status reports
type Stats struct {
	Path     string
	Bytes    int64
	Records  int
	Failures int
}

// Stats counts records and bad lines with one pass over the file
func (s *Store) Stats() (Stats, error) {
	st := Stats{Path: s.path}
	for _, err := range s.Scan(0) {
		var pf *logrecord.ParseFailure
		switch {
		case err == nil:
			st.Records++
		case errors.As(err, &pf):
			st.Failures++
		default:
			return st, err
		}
	}
	size, err := s.Size()
	if err != nil {
		return st, err
	}
	st.Bytes = size
	return st, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("logstore(%s)", s.path)
}
