package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests that hit no registered route
const unmatchedRoute = "unmatched"

// Middleware records one request sample per HTTP call. Samples are labeled
// by route template ("/v1/logs/:correlation_id"), never by raw path.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(began))
	}
}

// Timer records the latency of one search query
type Timer struct {
	metrics *Metrics
	kind    string
	began   time.Time
}

// NewTimer starts timing a query of the given kind; use as
//
//	defer monitoring.NewTimer(m, "recent").Stop()
func NewTimer(metrics *Metrics, kind string) *Timer {
	return &Timer{metrics: metrics, kind: kind, began: time.Now()}
}

// Stop records the elapsed time
func (t *Timer) Stop() {
	t.metrics.RecordQuery(t.kind, time.Since(t.began))
}
