package logrecord

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// TimeLayout is the wire format of timestamps: ISO-8601, milliseconds, UTC
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	// DefaultMaxLineBytes bounds one encoded line
	DefaultMaxLineBytes = 64 * 1024

	// DefaultExcerptLimit bounds body excerpts
	DefaultExcerptLimit = 500
)

// HTML escaping is off so the correlation id lands in the line verbatim
var api = sonic.Config{
	EscapeHTML:       false,
	CompactMarshaler: true,
}.Froze()

// wire is the line layout; field order is the key order on disk
type wire struct {
	Timestamp     string         `json:"timestamp"`
	Level         Level          `json:"level"`
	CorrelationID string         `json:"correlation_id"`
	Endpoint      string         `json:"endpoint"`
	Method        string         `json:"method"`
	StatusCode    int            `json:"status_code"`
	ErrorMessage  *string        `json:"error_message"`
	StackLocation *StackLocation `json:"stack_location"`
	BodyExcerpt   *string        `json:"body_excerpt"`
}

// wireIn detects missing required keys on the way in
type wireIn struct {
	Timestamp     *string        `json:"timestamp"`
	Level         *string        `json:"level"`
	CorrelationID *string        `json:"correlation_id"`
	Endpoint      *string        `json:"endpoint"`
	Method        *string        `json:"method"`
	StatusCode    *int           `json:"status_code"`
	ErrorMessage  *string        `json:"error_message"`
	StackLocation *StackLocation `json:"stack_location"`
	BodyExcerpt   *string        `json:"body_excerpt"`
}

// MarshalJSON renders the record in its line layout
func (r Record) MarshalJSON() ([]byte, error) {
	return api.Marshal(wire{
		Timestamp:     Normalize(r.Timestamp).Format(TimeLayout),
		Level:         r.Level,
		CorrelationID: r.CorrelationID,
		Endpoint:      r.Endpoint,
		Method:        r.Method,
		StatusCode:    r.StatusCode,
		ErrorMessage:  r.ErrorMessage,
		StackLocation: r.StackLocation,
		BodyExcerpt:   r.BodyExcerpt,
	})
}

// UnmarshalJSON reads the line layout, requiring every mandatory key
func (r *Record) UnmarshalJSON(data []byte) error {
	var in wireIn
	if err := api.Unmarshal(data, &in); err != nil {
		return err
	}

	missing := func(name string) error { return fmt.Errorf("missing %q", name) }
	switch {
	case in.Timestamp == nil:
		return missing("timestamp")
	case in.Level == nil:
		return missing("level")
	case in.CorrelationID == nil:
		return missing("correlation_id")
	case in.Endpoint == nil:
		return missing("endpoint")
	case in.Method == nil:
		return missing("method")
	case in.StatusCode == nil:
		return missing("status_code")
	}

	ts, err := time.Parse(time.RFC3339Nano, *in.Timestamp)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}

	*r = Record{
		Timestamp:     Normalize(ts),
		Level:         Level(*in.Level),
		CorrelationID: *in.CorrelationID,
		Endpoint:      *in.Endpoint,
		Method:        *in.Method,
		StatusCode:    *in.StatusCode,
		ErrorMessage:  in.ErrorMessage,
		StackLocation: in.StackLocation,
		BodyExcerpt:   in.BodyExcerpt,
	}
	return nil
}

// Codec turns records into single log lines and back
type Codec struct {
	maxLineBytes int
	excerptLimit int
}

// CodecOption configures a Codec
type CodecOption func(*Codec)

// WithMaxLineBytes bounds the encoded line length, newline excluded
func WithMaxLineBytes(n int) CodecOption {
	return func(c *Codec) { c.maxLineBytes = n }
}

// WithExcerptLimit bounds body excerpts accepted by Encode
func WithExcerptLimit(n int) CodecOption {
	return func(c *Codec) { c.excerptLimit = n }
}

// NewCodec creates a codec
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{
		maxLineBytes: DefaultMaxLineBytes,
		excerptLimit: DefaultExcerptLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExcerptLimit returns the configured body excerpt bound
func (c *Codec) ExcerptLimit() int { return c.excerptLimit }

// MaxLineBytes returns the configured line bound
func (c *Codec) MaxLineBytes() int { return c.maxLineBytes }

// Encode validates r and renders it as one JSON object with no newline.
// The result contains no '\n', so appending it plus "\n" yields one line.
func (c *Codec) Encode(r Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.BodyExcerpt != nil && c.excerptLimit >= 0 && len(*r.BodyExcerpt) > c.excerptLimit {
		return nil, invalid("body excerpt of %d bytes exceeds %d", len(*r.BodyExcerpt), c.excerptLimit)
	}

	line, err := r.MarshalJSON()
	if err != nil {
		return nil, invalid("encode: %v", err)
	}
	if c.maxLineBytes > 0 && len(line) > c.maxLineBytes {
		return nil, invalid("encoded line of %d bytes exceeds %d", len(line), c.maxLineBytes)
	}
	return line, nil
}

// Decode parses one line. Any failure is a *ParseFailure.
func (c *Codec) Decode(line []byte) (Record, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Record{}, parseFailure(line, errors.New("empty line"))
	}

	var r Record
	if err := r.UnmarshalJSON(trimmed); err != nil {
		return Record{}, parseFailure(line, err)
	}
	if err := r.Validate(); err != nil {
		return Record{}, parseFailure(line, err)
	}
	return r, nil
}

var defaultCodec = NewCodec()

// Encode renders r with the default codec
func Encode(r Record) ([]byte, error) { return defaultCodec.Encode(r) }

// Decode parses a line with the default codec
func Decode(line []byte) (Record, error) { return defaultCodec.Decode(line) }
