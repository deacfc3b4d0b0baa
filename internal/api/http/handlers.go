// Package http implements the read-only query API over the correlation index.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/api/middleware"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/index"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/search"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/logging"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/api-diagnostics/internal/storage/logstore"
)

// LogsResponse is returned by every query endpoint
type LogsResponse struct {
	CorrelationID string             `json:"correlation_id,omitempty"`
	Query         string             `json:"query,omitempty"`
	Count         int                `json:"count"`
	Records       []logrecord.Record `json:"records"`
}

// ErrorResponse carries a failure message
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handlers serves queries. The index is refreshed from the store before
// each query so records appended by instrumented apps show up without a
// restart.
type Handlers struct {
	store   *logstore.Store
	index   *index.Index
	engine  *search.Engine
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandlers creates handlers over an index and its backing store
func NewHandlers(store *logstore.Store, ix *index.Index, engine *search.Engine, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	return &Handlers{
		store:   store,
		index:   ix,
		engine:  engine,
		metrics: metrics,
		logger:  logging.OrNop(logger),
	}
}

// Health reports liveness
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"records":      h.index.Len(),
		"correlations": h.index.Correlations(),
	})
}

// refresh pulls newly appended records into the index; it writes the error
// response itself and reports false on failure
func (h *Handlers) refresh(c *gin.Context) bool {
	added, err := h.index.Refresh(c.Request.Context())
	if err != nil {
		h.logger.Error("Index refresh failed",
			zap.String("correlation_id", middleware.CorrelationFrom(c.Request.Context())),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "index refresh failed"})
		return false
	}
	if added > 0 {
		h.logger.Debug("Index refreshed", zap.Int("added", added))
	}
	return true
}

func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidRange),
		errors.Is(err, search.ErrUnknownClass),
		errors.Is(err, search.ErrInvalidDuration),
		errors.Is(err, search.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("Query failed",
			zap.String("path", c.FullPath()),
			zap.String("correlation_id", middleware.CorrelationFrom(c.Request.Context())),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
