package logrecord

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Record {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 123_000_000, time.UTC)
	return Record{
		Timestamp:     ts,
		Level:         Error,
		CorrelationID: "abc12345-6789-4abc-8def-0123456789ab",
		Endpoint:      "/api/users",
		Method:        "POST",
		StatusCode:    404,
	}.WithError("User not found").WithStack("app/routes.py", 42).WithBody(`{"name":"x"}`, 500)
}

func TestEncodeLayout(t *testing.T) {
	line, err := Encode(Record{
		Timestamp:     time.Date(2024, 5, 1, 12, 0, 0, 123_000_000, time.UTC),
		Level:         Info,
		CorrelationID: "c1",
		Endpoint:      "/api/users",
		Method:        "GET",
		StatusCode:    200,
	})
	require.NoError(t, err)

	want := `{"timestamp":"2024-05-01T12:00:00.123Z","level":"INFO","correlation_id":"c1",` +
		`"endpoint":"/api/users","method":"GET","status_code":200,` +
		`"error_message":null,"stack_location":null,"body_excerpt":null}`
	assert.Equal(t, want, string(line))
}

func TestEncodeRejectsTimestampsItCannotKeep(t *testing.T) {
	fine := time.Date(2024, 1, 1, 3, 4, 5, 123_456_789, time.FixedZone("CET", 3600))
	cases := map[string]time.Time{
		"sub-millisecond": fine.UTC(),
		"not utc":         fine.Truncate(time.Millisecond),
	}

	for name, ts := range cases {
		t.Run(name, func(t *testing.T) {
			rec := sample()
			rec.Timestamp = ts

			_, err := Encode(rec)
			assert.ErrorIs(t, err, ErrInvalidRecord)

			rec = rec.At(ts)
			line, err := Encode(rec)
			require.NoError(t, err)
			got, err := Decode(line)
			require.NoError(t, err)
			assert.True(t, rec.Equal(got))
			assert.Equal(t, "2024-01-01T02:04:05.123Z", got.Timestamp.Format(TimeLayout))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	cases := map[string]Record{
		"full":    sample(),
		"minimal": New(Debug, "id-1", "GET", "/", 0),
		"unicode": New(Info, "ïd<&>", "PUT", "/api/ünï", 201).WithError("line one\nline two\t\"quoted\""),
		"empty optional strings": New(Error, "id-2", "DELETE", "/x", 500).
			WithError("").WithBody("", 10),
	}

	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			line, err := Encode(rec)
			require.NoError(t, err)
			assert.False(t, bytes.ContainsRune(line, '\n'))

			got, err := Decode(line)
			require.NoError(t, err)
			assert.True(t, rec.Equal(got), "got %+v", got)
			assert.Equal(t, rec, got)
		})
	}
}

func TestCorrelationIDIsVerbatimSubstring(t *testing.T) {
	rec := New(Info, "weird<id>&stuff", "GET", "/", 200)
	line, err := Encode(rec)
	require.NoError(t, err)
	assert.Contains(t, string(line), `"weird<id>&stuff"`)
}

func TestEncodeRejectsInvalid(t *testing.T) {
	base := New(Info, "id", "GET", "/", 200)

	cases := map[string]Record{
		"zero timestamp":  {Level: Info, CorrelationID: "id", Endpoint: "/", Method: "GET"},
		"bad level":       func() Record { r := base; r.Level = "WARN"; return r }(),
		"empty id":        func() Record { r := base; r.CorrelationID = ""; return r }(),
		"quote in id":     func() Record { r := base; r.CorrelationID = `a"b`; return r }(),
		"backslash in id": func() Record { r := base; r.CorrelationID = `a\b`; return r }(),
		"control in id":   func() Record { r := base; r.CorrelationID = "a\tb"; return r }(),
		"empty endpoint":  func() Record { r := base; r.Endpoint = ""; return r }(),
		"space in method": func() Record { r := base; r.Method = "GE T"; return r }(),
		"status range":    func() Record { r := base; r.StatusCode = 99; return r }(),
		"bad utf8":        base.WithError("\xff\xfe"),
		"long excerpt":    func() Record { r := base; s := strings.Repeat("x", 501); r.BodyExcerpt = &s; return r }(),
	}

	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Encode(rec)
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestEncodeLineLimit(t *testing.T) {
	c := NewCodec(WithMaxLineBytes(200))
	_, err := c.Encode(New(Info, "id", "GET", "/", 200).WithError(strings.Repeat("e", 300)))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestDecodeFailures(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"truncated":      `{"timestamp":"2024-05-01T12:00:00.123Z","level":"IN`,
		"not json":       "hello world",
		"missing key":    `{"timestamp":"2024-05-01T12:00:00.123Z","level":"INFO","endpoint":"/","method":"GET","status_code":200}`,
		"bad timestamp":  `{"timestamp":"yesterday","level":"INFO","correlation_id":"c","endpoint":"/","method":"GET","status_code":200}`,
		"bad level":      `{"timestamp":"2024-05-01T12:00:00.123Z","level":"LOUD","correlation_id":"c","endpoint":"/","method":"GET","status_code":200}`,
		"trailing bytes": `{"timestamp":"2024-05-01T12:00:00.123Z","level":"INFO","correlation_id":"c","endpoint":"/","method":"GET","status_code":200} x`,
	}

	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(line))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParseFailure)

			var pf *ParseFailure
			require.True(t, errors.As(err, &pf))
			assert.LessOrEqual(t, len(pf.Raw), rawLimit)
		})
	}
}

func TestDecodeToleratesExtraKeysAndPrecision(t *testing.T) {
	line := `{"timestamp":"2024-05-01T12:00:00.123456+02:00","level":"ERROR","correlation_id":"c",` +
		`"endpoint":"/","method":"GET","status_code":500,"extra":true}`

	rec, err := Decode([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 123_000_000, time.UTC), rec.Timestamp)
	assert.Nil(t, rec.ErrorMessage)
	assert.Nil(t, rec.StackLocation)
}

func TestDecodeAcceptsCRLF(t *testing.T) {
	line, err := Encode(sample())
	require.NoError(t, err)

	rec, err := Decode(append(line, '\r'))
	require.NoError(t, err)
	assert.True(t, sample().Equal(rec))
}
