package telemetry

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware logs every request with slog and records request metrics.
// m may be nil.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		took := time.Since(start)

		if m != nil {
			m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
			m.httpLatency.WithLabelValues(c.Request.Method, route).Observe(took.Seconds())
		}

		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"took", took,
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			slog.ErrorContext(ctx, "http: request failed", attrs...)
		default:
			slog.InfoContext(ctx, "http: request served", attrs...)
		}
	}
}
