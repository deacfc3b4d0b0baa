package search

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/index"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/logging"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
)

// Range is an inclusive status code interval
type Range struct {
	Low  int
	High int
}

// Contains reports whether status falls in r
func (r Range) Contains(status int) bool {
	return status >= r.Low && status <= r.High
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Low, r.High)
}

var (
	ClientErrors = Range{Low: 400, High: 499}
	ServerErrors = Range{Low: 500, High: 599}
	AllErrors    = Range{Low: 400, High: 599}
)

// ParseClass maps "4xx", "5xx" and their synonyms to a status range.
// The empty string selects both classes.
func ParseClass(class string) (Range, error) {
	switch strings.ToLower(strings.TrimSpace(class)) {
	case "", "all", "errors":
		return AllErrors, nil
	case "4xx", "400", "400-499", "client":
		return ClientErrors, nil
	case "5xx", "500", "500-599", "server":
		return ServerErrors, nil
	}
	return Range{}, fmt.Errorf("%w: %q (want 4xx or 5xx)", ErrUnknownClass, class)
}

// Engine runs queries against an index
type Engine struct {
	index   *index.Index
	filters *filterCache
	logger  *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source used by Recent and now_ms
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over ix
func New(ix *index.Index, opts ...Option) *Engine {
	e := &Engine{
		index:   ix,
		filters: newFilterCache(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ByCorrelation returns every record of one request. Unknown ids yield an
// empty slice.
func (e *Engine) ByCorrelation(id string) []logrecord.Record {
	defer monitoring.NewTimer(e.metrics, "correlation").Stop()
	return e.index.Lookup(id)
}

// ByStatusRange returns records whose status lies in [low, high]
func (e *Engine) ByStatusRange(low, high int) ([]logrecord.Record, error) {
	if low > high {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidRange, low, high)
	}
	defer monitoring.NewTimer(e.metrics, "status_range").Stop()

	r := Range{Low: low, High: high}
	return e.where(func(rec logrecord.Record) bool { return r.Contains(rec.StatusCode) }), nil
}

// Recent returns records stamped within d of now
func (e *Engine) Recent(d time.Duration) ([]logrecord.Record, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDuration, d)
	}
	defer monitoring.NewTimer(e.metrics, "recent").Stop()

	now := e.now()
	out := e.index.Since(now.Add(-d))
	// Records stamped in the future (clock skew between writers) are not recent
	for i, rec := range out {
		if rec.Timestamp.After(now) {
			return out[:i], nil
		}
	}
	return out, nil
}

// Errors returns records in the named error class, "4xx" or "5xx"
func (e *Engine) Errors(class string) ([]logrecord.Record, error) {
	r, err := ParseClass(class)
	if err != nil {
		return nil, err
	}
	return e.ByStatusRange(r.Low, r.High)
}

// Filter returns records for which the CEL expression evaluates to true.
// Records whose evaluation fails are skipped.
func (e *Engine) Filter(expr string) ([]logrecord.Record, error) {
	f, err := e.filters.get(expr)
	if err != nil {
		return nil, err
	}
	defer monitoring.NewTimer(e.metrics, "filter").Stop()

	nowMs := e.now().UnixMilli()
	skipped := 0
	out := e.where(func(rec logrecord.Record) bool {
		ok, err := f.eval(rec, nowMs)
		if err != nil {
			skipped++
			return false
		}
		return ok
	})
	if skipped > 0 {
		e.logger.Debug("Filter evaluation failed for some records",
			zap.String("filter", expr),
			zap.Int("skipped", skipped))
	}
	return out, nil
}

func (e *Engine) where(keep func(logrecord.Record) bool) []logrecord.Record {
	out := []logrecord.Record{}
	for _, rec := range e.index.All() {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}
