package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultWithin is the window for /v1/recent without a within parameter
const DefaultWithin = 15 * time.Minute

// Correlation returns every record for one correlation id, in timestamp order
func (h *Handlers) Correlation(c *gin.Context) {
	id := c.Param("correlation_id")
	if strings.TrimSpace(id) == "" {
		badRequest(c, "correlation id is required")
		return
	}
	if !h.refresh(c) {
		return
	}

	records := h.engine.ByCorrelation(id)
	c.JSON(http.StatusOK, LogsResponse{CorrelationID: id, Count: len(records), Records: records})
}

// StatusRange returns records with status_low <= status <= status_high.
// A missing bound defaults to the widest valid one.
func (h *Handlers) StatusRange(c *gin.Context) {
	low, ok := intQuery(c, "status_low", 100)
	if !ok {
		return
	}
	high, ok := intQuery(c, "status_high", 599)
	if !ok {
		return
	}
	if !h.refresh(c) {
		return
	}

	records, err := h.engine.ByStatusRange(low, high)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, LogsResponse{
		Query:   strconv.Itoa(low) + "-" + strconv.Itoa(high),
		Count:   len(records),
		Records: records,
	})
}

// ErrorClass returns 4xx or 5xx records
func (h *Handlers) ErrorClass(c *gin.Context) {
	class := c.Param("class")
	if !h.refresh(c) {
		return
	}

	records, err := h.engine.Errors(class)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, LogsResponse{Query: class, Count: len(records), Records: records})
}

// Recent returns records from the last `within` (a Go duration, default 15m)
func (h *Handlers) Recent(c *gin.Context) {
	within := DefaultWithin
	if raw := c.Query("within"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			badRequest(c, "invalid within: "+raw)
			return
		}
		within = d
	}
	if !h.refresh(c) {
		return
	}

	records, err := h.engine.Recent(within)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, LogsResponse{Query: within.String(), Count: len(records), Records: records})
}

// Query evaluates a CEL filter over every record
func (h *Handlers) Query(c *gin.Context) {
	filter := c.Query("filter")
	if strings.TrimSpace(filter) == "" {
		badRequest(c, "filter is required")
		return
	}
	if !h.refresh(c) {
		return
	}

	records, err := h.engine.Filter(filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, LogsResponse{Query: filter, Count: len(records), Records: records})
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+key+": "+raw)
		return 0, false
	}
	return n, true
}
