package logrecord

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Level is the severity of a record
type Level string

const (
	Debug Level = "DEBUG"
	Info  Level = "INFO"
	Error Level = "ERROR"
)

// Valid reports whether l is one of the known levels
func (l Level) Valid() bool {
	switch l {
	case Debug, Info, Error:
		return true
	}
	return false
}

// ParseLevel accepts any case
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", invalid("unknown level %q", s)
	}
	return l, nil
}

// StackLocation points at the source line that produced an error
type StackLocation struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// Record is one immutable structured log event
type Record struct {
	Timestamp     time.Time
	Level         Level
	CorrelationID string
	Endpoint      string
	Method        string
	StatusCode    int // 0 until the response status is known

	ErrorMessage  *string
	StackLocation *StackLocation
	BodyExcerpt   *string
}

// Now returns the current time at record precision
func Now() time.Time {
	return Normalize(time.Now())
}

// Normalize truncates t to millisecond precision in UTC
func Normalize(t time.Time) time.Time {
	return t.Truncate(time.Millisecond).UTC()
}

// New builds a record stamped now
func New(level Level, correlationID, method, endpoint string, status int) Record {
	return Record{
		Timestamp:     Now(),
		Level:         level,
		CorrelationID: correlationID,
		Endpoint:      endpoint,
		Method:        method,
		StatusCode:    status,
	}
}

// At returns a copy stamped with t
func (r Record) At(t time.Time) Record {
	r.Timestamp = Normalize(t)
	return r
}

// WithError returns a copy carrying an error message
func (r Record) WithError(msg string) Record {
	r.ErrorMessage = &msg
	return r
}

// WithStack returns a copy carrying a stack location
func (r Record) WithStack(file string, line int) Record {
	r.StackLocation = &StackLocation{File: file, Line: line}
	return r
}

// WithBody returns a copy carrying a body excerpt cut to limit bytes
func (r Record) WithBody(body string, limit int) Record {
	excerpt := Excerpt(body, limit)
	r.BodyExcerpt = &excerpt
	return r
}

// IsError reports whether the record describes a failed request
func (r Record) IsError() bool {
	return r.Level == Error || r.StatusCode >= 400
}

// Equal compares two records field by field
func (r Record) Equal(o Record) bool {
	return r.Timestamp.Equal(o.Timestamp) &&
		r.Level == o.Level &&
		r.CorrelationID == o.CorrelationID &&
		r.Endpoint == o.Endpoint &&
		r.Method == o.Method &&
		r.StatusCode == o.StatusCode &&
		equalStr(r.ErrorMessage, o.ErrorMessage) &&
		equalStr(r.BodyExcerpt, o.BodyExcerpt) &&
		equalStack(r.StackLocation, o.StackLocation)
}

func equalStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStack(a, b *StackLocation) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Excerpt cuts s to at most limit bytes without splitting a UTF-8 sequence
func Excerpt(s string, limit int) string {
	if limit < 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// StatusClass maps a status code to its class name ("4xx"), or "" for 0
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return ""
	}
	return string(rune('0'+status/100)) + "xx"
}

// Validate checks the data model invariants. The correlation id must be
// written into the line verbatim, so characters JSON would escape are refused.
func (r Record) Validate() error {
	if r.Timestamp.IsZero() {
		return invalid("missing timestamp")
	}
	if r.Timestamp.Location() != time.UTC || !r.Timestamp.Equal(Normalize(r.Timestamp)) {
		return invalid("timestamp %s is not UTC at millisecond precision (use Normalize)", r.Timestamp.Format(time.RFC3339Nano))
	}
	if !r.Level.Valid() {
		return invalid("unknown level %q", r.Level)
	}
	if r.CorrelationID == "" {
		return invalid("empty correlation id")
	}
	if !utf8.ValidString(r.CorrelationID) || strings.ContainsFunc(r.CorrelationID, escaped) {
		return invalid("correlation id %q contains characters that cannot appear verbatim", r.CorrelationID)
	}
	if r.Endpoint == "" {
		return invalid("empty endpoint")
	}
	if r.Method == "" || strings.ContainsFunc(r.Method, func(c rune) bool { return c <= ' ' || c == 0x7f }) {
		return invalid("bad method %q", r.Method)
	}
	if r.StatusCode != 0 && (r.StatusCode < 100 || r.StatusCode > 599) {
		return invalid("status code %d out of range", r.StatusCode)
	}
	for name, s := range map[string]string{"endpoint": r.Endpoint, "method": r.Method} {
		if !utf8.ValidString(s) {
			return invalid("%s is not valid utf-8", name)
		}
	}
	for name, s := range map[string]*string{"error_message": r.ErrorMessage, "body_excerpt": r.BodyExcerpt} {
		if s != nil && !utf8.ValidString(*s) {
			return invalid("%s is not valid utf-8", name)
		}
	}
	if r.StackLocation != nil && !utf8.ValidString(r.StackLocation.File) {
		return invalid("stack location is not valid utf-8")
	}
	return nil
}

func escaped(c rune) bool {
	return c == '"' || c == '\\' || c < 0x20 || c == 0x7f
}
