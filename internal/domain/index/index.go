package index

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/logging"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/api-diagnostics/internal/storage/logstore"
)

// ctxCheckEvery is how many lines are read between cancellation checks
const ctxCheckEvery = 1024

// notStored marks records that were observed without a store position
const notStored = -1

type item struct {
	rec    logrecord.Record
	offset int64
}

// Index maps correlation ids to ordered records
type Index struct {
	store      *logstore.Store
	checkpoint string
	logger     *zap.Logger
	metrics    *monitoring.Metrics

	mu       sync.RWMutex
	groups   map[string][]logrecord.Record
	ordered  []item
	offset   int64           // store bytes consumed contiguously
	seen     map[int64]int64 // line start -> end, observed ahead of offset
	failures int
	gen      uint64 // bumped when the content is replaced wholesale
}

// Option configures an Index
type Option func(*Index)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(ix *Index) { ix.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *monitoring.Metrics) Option {
	return func(ix *Index) { ix.metrics = m }
}

// WithCheckpoint enables checkpoints at path
func WithCheckpoint(path string) Option {
	return func(ix *Index) { ix.checkpoint = path }
}

// New creates an empty index over store
func New(store *logstore.Store, opts ...Option) *Index {
	ix := &Index{
		store:  store,
		logger: zap.NewNop(),
		groups: make(map[string][]logrecord.Record),
		seen:   make(map[int64]int64),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Rebuild discards the current content and replays the whole store. Lines
// still being written at the end of the log are left for the next Refresh.
func (ix *Index) Rebuild(ctx context.Context) error {
	start := time.Now()
	fresh := New(ix.store)

	failures, err := fresh.consume(ctx, 0)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	ix.groups = fresh.groups
	ix.ordered = fresh.ordered
	ix.offset = fresh.offset
	ix.seen = make(map[int64]int64)
	ix.failures = failures
	ix.gen++
	records, groups := len(ix.ordered), len(ix.groups)
	ix.mu.Unlock()

	ix.metrics.IncIndexLoads("rebuild")
	ix.metrics.SetIndexSize(records, groups)
	ix.logger.Info("Index rebuilt",
		zap.Int("records", records),
		zap.Int("correlations", groups),
		zap.Int("parse_failures", failures),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Refresh indexes lines appended since the last pass and returns how many
// records were added. A log shorter than what was consumed means it was
// replaced, so the index is rebuilt.
func (ix *Index) Refresh(ctx context.Context) (int, error) {
	size, err := ix.store.Size()
	if err != nil {
		return 0, err
	}

	ix.mu.RLock()
	offset := ix.offset
	ix.mu.RUnlock()

	if size < offset {
		ix.logger.Warn("Log shrank, rebuilding index",
			zap.Int64("size", size), zap.Int64("offset", offset))
		if err := ix.Rebuild(ctx); err != nil {
			return 0, err
		}
		return ix.Len(), nil
	}
	if size == offset {
		return 0, nil
	}

	before := ix.Len()
	failures, err := ix.consume(ctx, offset)
	if err != nil {
		return 0, err
	}

	ix.mu.Lock()
	ix.failures += failures
	ix.mu.Unlock()

	added := ix.Len() - before
	ix.publishSize()
	return added, nil
}

// consume reads complete lines from offset, inserting every record whose
// line has not been observed already
func (ix *Index) consume(ctx context.Context, from int64) (int, error) {
	ix.mu.RLock()
	gen := ix.gen
	ix.mu.RUnlock()

	failures := 0
	n := 0
	for e, err := range ix.store.Tail(from) {
		n++
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return failures, err
			}
		}

		var pf *logrecord.ParseFailure
		if err != nil && !errors.As(err, &pf) {
			return failures, err
		}

		ix.mu.Lock()
		if ix.gen != gen {
			// Replaced by a concurrent rebuild
			ix.mu.Unlock()
			return failures, nil
		}
		if e.Offset < ix.offset {
			// Already observed in-process
			ix.mu.Unlock()
			continue
		}
		if _, ok := ix.seen[e.Offset]; ok {
			delete(ix.seen, e.Offset)
		} else if pf != nil {
			failures++
		} else {
			ix.insert(e.Record, e.Offset)
		}
		ix.offset = e.End()
		ix.advance()
		ix.mu.Unlock()
	}
	return failures, ctx.Err()
}

// Observe adds a record that has no position in the store. It is lost on
// the next Rebuild.
func (ix *Index) Observe(rec logrecord.Record) {
	ix.mu.Lock()
	ix.insert(rec, notStored)
	ix.mu.Unlock()
	ix.publishSize()
}

// ObserveAt adds a record the caller appended at pos. Records whose line was
// already consumed are ignored, so observing and refreshing never double
// count.
func (ix *Index) ObserveAt(rec logrecord.Record, pos logstore.Position) {
	ix.mu.Lock()
	if pos.Offset < ix.offset {
		ix.mu.Unlock()
		return
	}
	if _, ok := ix.seen[pos.Offset]; ok {
		ix.mu.Unlock()
		return
	}
	ix.insert(rec, pos.Offset)
	ix.seen[pos.Offset] = pos.End()
	ix.advance()
	ix.mu.Unlock()
	ix.publishSize()
}

// Lookup returns the records of id in order. Unknown ids yield an empty
// slice. The result is a copy and is not affected by later inserts.
func (ix *Index) Lookup(id string) []logrecord.Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	group := ix.groups[id]
	out := make([]logrecord.Record, len(group))
	copy(out, group)
	return out
}

// All returns every record ordered by timestamp, ties in arrival order
func (ix *Index) All() []logrecord.Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]logrecord.Record, len(ix.ordered))
	for i, it := range ix.ordered {
		out[i] = it.rec
	}
	return out
}

// Since returns the records stamped at or after t, in timestamp order
func (ix *Index) Since(t time.Time) []logrecord.Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	i := sort.Search(len(ix.ordered), func(i int) bool {
		return !ix.ordered[i].rec.Timestamp.Before(t)
	})
	out := make([]logrecord.Record, 0, len(ix.ordered)-i)
	for _, it := range ix.ordered[i:] {
		out = append(out, it.rec)
	}
	return out
}

// Len returns the number of indexed records
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ordered)
}

// Correlations returns the number of distinct correlation ids
func (ix *Index) Correlations() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.groups)
}

// Failures returns how many undecodable lines were skipped
func (ix *Index) Failures() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.failures
}

// Offset returns how many store bytes have been consumed
func (ix *Index) Offset() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.offset
}

// insert places rec after every record with the same or an earlier
// timestamp. Caller holds mu.
func (ix *Index) insert(rec logrecord.Record, offset int64) {
	group := ix.groups[rec.CorrelationID]
	i := sort.Search(len(group), func(i int) bool {
		return group[i].Timestamp.After(rec.Timestamp)
	})
	ix.groups[rec.CorrelationID] = slices.Insert(group, i, rec)

	j := sort.Search(len(ix.ordered), func(j int) bool {
		return ix.ordered[j].rec.Timestamp.After(rec.Timestamp)
	})
	ix.ordered = slices.Insert(ix.ordered, j, item{rec: rec, offset: offset})
}

// advance moves offset across lines observed ahead of it. Caller holds mu.
func (ix *Index) advance() {
	for {
		end, ok := ix.seen[ix.offset]
		if !ok {
			return
		}
		delete(ix.seen, ix.offset)
		ix.offset = end
	}
}

func (ix *Index) publishSize() {
	if ix.metrics == nil {
		return
	}
	ix.mu.RLock()
	records, groups := len(ix.ordered), len(ix.groups)
	ix.mu.RUnlock()
	ix.metrics.SetIndexSize(records, groups)
}
