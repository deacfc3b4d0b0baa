// Package id mints the identifiers used across the tool.
//
// Correlation IDs are UUIDv4 strings. The injected browser interceptor mints
// them with the same shape, and every backend log line of one request carries
// the value it received.
//
// Snapshot IDs name archived file snapshots: "snap_" followed by a ULID
// stamped with the time the snapshot was taken. ULIDs sort lexically by time,
// so a plain directory listing is already in snapshot order.
package id

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// CorrelationID identifies one logical request across frontend and backend
type CorrelationID string

func (c CorrelationID) String() string { return string(c) }

// Short returns the display prefix
func (c CorrelationID) Short() string { return ShortID(string(c)) }

// NewCorrelationID returns a random UUIDv4
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// ValidCorrelationID reports whether s parses as a UUID.
// The log store accepts any non-empty opaque id; this is advisory only.
func ValidCorrelationID(s string) bool {
	return s != "" && uuid.Validate(s) == nil
}

// ShortLen is how many leading characters compact output shows
const ShortLen = 8

// ShortID truncates s to ShortLen characters
func ShortID(s string) string {
	if len(s) > ShortLen {
		return s[:ShortLen]
	}
	return s
}

// SnapshotPrefix tags archived snapshot identifiers
const SnapshotPrefix = "snap_"

// ErrNotSnapshotID is returned when parsing something that is not a snapshot id
var ErrNotSnapshotID = errors.New("not a snapshot id")

// SnapshotID identifies one archived file snapshot
type SnapshotID string

func (s SnapshotID) String() string { return string(s) }

// Time returns the moment the snapshot was taken, at millisecond precision
func (s SnapshotID) Time() (time.Time, error) {
	raw, ok := strings.CutPrefix(string(s), SnapshotPrefix)
	if !ok {
		return time.Time{}, ErrNotSnapshotID
	}
	u, err := ulid.ParseStrict(raw)
	if err != nil {
		return time.Time{}, errors.Join(ErrNotSnapshotID, err)
	}
	return ulid.Time(u.Time()), nil
}

// snapshots is monotonic so ids minted for the same millisecond keep
// their minting order
var snapshots = struct {
	sync.Mutex
	entropy *ulid.MonotonicEntropy
}{entropy: ulid.Monotonic(rand.Reader, 0)}

// SnapshotIDAt mints a snapshot id stamped with t
func SnapshotIDAt(t time.Time) SnapshotID {
	snapshots.Lock()
	defer snapshots.Unlock()
	return SnapshotID(SnapshotPrefix + ulid.MustNew(ulid.Timestamp(t), snapshots.entropy).String())
}
