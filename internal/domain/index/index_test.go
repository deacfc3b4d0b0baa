package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/api-diagnostics/internal/storage/logstore"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func rec(id string, sec int, status int) logrecord.Record {
	return logrecord.New(logrecord.Info, id, "POST", "/api/users", status).At(t0.Add(time.Duration(sec) * time.Second))
}

func setup(t *testing.T) (*logstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := logstore.Open(filepath.Join(dir, "logs", "api.log"), logstore.WithSync(false))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func appendAll(t *testing.T, s *logstore.Store, recs ...logrecord.Record) []logstore.Position {
	t.Helper()
	var out []logstore.Position
	for _, r := range recs {
		pos, err := s.Append(r)
		require.NoError(t, err)
		out = append(out, pos)
	}
	return out
}

func ids(recs []logrecord.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = fmt.Sprintf("%s@%d", r.CorrelationID, int(r.Timestamp.Sub(t0).Seconds()))
	}
	return out
}

func TestRebuildGroupsAndOrders(t *testing.T) {
	s, _ := setup(t)
	appendAll(t, s,
		rec("a", 5, 200),
		rec("b", 1, 200),
		rec("a", 2, 0),
		rec("a", 5, 500), // tie with the first record, arrives later
		rec("b", 0, 404),
	)

	ix := New(s)
	require.NoError(t, ix.Rebuild(context.Background()))

	a := ix.Lookup("a")
	require.Len(t, a, 3)
	assert.Equal(t, []string{"a@2", "a@5", "a@5"}, ids(a))
	assert.Equal(t, 200, a[1].StatusCode)
	assert.Equal(t, 500, a[2].StatusCode)

	assert.Equal(t, []string{"b@0", "b@1"}, ids(ix.Lookup("b")))
	assert.Equal(t, 5, ix.Len())
	assert.Equal(t, 2, ix.Correlations())
}

func TestLookupUnknownIsEmpty(t *testing.T) {
	s, _ := setup(t)
	ix := New(s)
	require.NoError(t, ix.Rebuild(context.Background()))

	got := ix.Lookup("nope")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLookupReturnsSnapshot(t *testing.T) {
	s, _ := setup(t)
	ix := New(s)
	ix.Observe(rec("a", 1, 200))

	before := ix.Lookup("a")
	ix.Observe(rec("a", 0, 200))

	assert.Len(t, before, 1)
	assert.Equal(t, []string{"a@0", "a@1"}, ids(ix.Lookup("a")))
}

func TestCompletenessWithInterleavedIDs(t *testing.T) {
	s, _ := setup(t)
	const n = 50
	for i := 0; i < n; i++ {
		appendAll(t, s, rec("target", i, 200), rec(fmt.Sprintf("other-%d", i), i, 200))
	}

	ix := New(s)
	require.NoError(t, ix.Rebuild(context.Background()))

	got := ix.Lookup("target")
	require.Len(t, got, n)
	for i := 1; i < n; i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp))
	}
}

func TestRefreshTailsNewLines(t *testing.T) {
	s, _ := setup(t)
	appendAll(t, s, rec("a", 0, 200))

	ix := New(s)
	require.NoError(t, ix.Rebuild(context.Background()))

	appendAll(t, s, rec("a", 1, 200), rec("b", 2, 200))
	added, err := ix.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Len(t, ix.Lookup("a"), 2)

	added, err = ix.Refresh(context.Background())
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestObserveAtIsNotDoubleCounted(t *testing.T) {
	s, _ := setup(t)
	ix := New(s)
	require.NoError(t, ix.Rebuild(context.Background()))

	// Another writer's line lands between ours
	mine := appendAll(t, s, rec("mine", 0, 200))
	appendAll(t, s, rec("theirs", 1, 200))
	later := rec("mine", 2, 404)
	mine = append(mine, appendAll(t, s, later)...)

	ix.ObserveAt(rec("mine", 0, 200), mine[0])
	ix.ObserveAt(later, mine[1])
	assert.Equal(t, mine[0].End(), ix.Offset())

	_, err := ix.Refresh(context.Background())
	require.NoError(t, err)

	assert.Len(t, ix.Lookup("mine"), 2)
	assert.Len(t, ix.Lookup("theirs"), 1)
	assert.Equal(t, 3, ix.Len())

	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, size, ix.Offset())

	// Observing again after the line was consumed is ignored
	ix.ObserveAt(later, mine[1])
	assert.Equal(t, 3, ix.Len())
}

func TestRefreshAfterTruncationRebuilds(t *testing.T) {
	s, _ := setup(t)
	appendAll(t, s, rec("a", 0, 200), rec("a", 1, 200))

	ix := New(s)
	require.NoError(t, ix.Rebuild(context.Background()))
	require.Equal(t, 2, ix.Len())

	require.NoError(t, os.Truncate(s.Path(), 0))
	appendAll(t, s, rec("b", 0, 200))

	_, err := ix.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ix.Lookup("a"))
	assert.Len(t, ix.Lookup("b"), 1)
}

func TestParseFailuresAreCounted(t *testing.T) {
	s, _ := setup(t)
	appendAll(t, s, rec("a", 0, 200))

	f, err := os.OpenFile(s.Path(), os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.WriteString("not a record\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	appendAll(t, s, rec("a", 1, 200))

	ix := New(s)
	require.NoError(t, ix.Rebuild(context.Background()))
	assert.Len(t, ix.Lookup("a"), 2)
	assert.Equal(t, 1, ix.Failures())
}

func TestSince(t *testing.T) {
	s, _ := setup(t)
	ix := New(s)
	for i := 0; i < 5; i++ {
		ix.Observe(rec("a", i, 200))
	}
	assert.Equal(t, []string{"a@3", "a@4"}, ids(ix.Since(t0.Add(3*time.Second))))
	assert.Empty(t, ix.Since(t0.Add(time.Hour)))
}

func TestRebuildHonoursCancellation(t *testing.T) {
	s, _ := setup(t)
	for i := 0; i < 3*ctxCheckEvery; i++ {
		appendAll(t, s, rec("a", i, 200))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix := New(s)
	assert.ErrorIs(t, ix.Rebuild(ctx), context.Canceled)
	assert.Zero(t, ix.Len())
}

func TestMetricsTrackSize(t *testing.T) {
	s, _ := setup(t)
	appendAll(t, s, rec("a", 0, 200), rec("b", 0, 200))

	m := monitoring.NewMetrics()
	ix := New(s, WithMetrics(m))
	require.NoError(t, ix.Rebuild(context.Background()))
	assert.Equal(t, 2, ix.Correlations())
}
