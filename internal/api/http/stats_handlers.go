package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
)

// StatsResponse summarizes the store, the index and the process counters
type StatsResponse struct {
	Timestamp    time.Time                  `json:"timestamp"`
	LogPath      string                     `json:"log_path"`
	LogBytes     int64                      `json:"log_bytes"`
	Records      int                        `json:"records"`
	Correlations int                        `json:"correlations"`
	Failures     int                        `json:"parse_failures"`
	Metrics      monitoring.MetricsSnapshot `json:"metrics"`
}

// Stats serves a JSON summary alongside the Prometheus endpoint
func (h *Handlers) Stats(c *gin.Context) {
	if !h.refresh(c) {
		return
	}

	size, err := h.store.Size()
	if err != nil {
		h.logger.Warn("Could not stat log store", zap.Error(err))
	}

	c.JSON(http.StatusOK, StatsResponse{
		Timestamp:    time.Now().UTC(),
		LogPath:      h.store.Path(),
		LogBytes:     size,
		Records:      h.index.Len(),
		Correlations: h.index.Correlations(),
		Failures:     h.index.Failures(),
		Metrics:      h.metrics.Snapshot(),
	})
}
