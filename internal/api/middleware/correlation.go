package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/shared/id"
)

// CorrelationHeader carries the request's correlation id in both directions
const CorrelationHeader = "X-Correlation-ID"

type contextKey struct{}

// maxIncomingID bounds ids accepted from clients
const maxIncomingID = 128

// Correlation tags each query server request with a correlation id, taken
// from the request header or minted, echoes it in the response and logs the
// request at debug level with it.
func Correlation(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := strings.TrimSpace(c.GetHeader(CorrelationHeader))
		if cid == "" || len(cid) > maxIncomingID || strings.ContainsAny(cid, "\"\\\r\n") {
			cid = id.NewCorrelationID().String()
		}

		c.Header(CorrelationHeader, cid)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), contextKey{}, cid))

		start := time.Now()
		c.Next()

		if logger != nil {
			logger.Debug("Query served",
				zap.String("correlation_id", id.ShortID(cid)),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Int("status", c.Writer.Status()),
				zap.Duration("duration", time.Since(start)))
		}
	}
}

// CorrelationFrom returns the id Correlation attached to ctx
func CorrelationFrom(ctx context.Context) string {
	cid, _ := ctx.Value(contextKey{}).(string)
	return cid
}
