package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// ReviewerIDHeader identifies the staff member acting on a request
const ReviewerIDHeader = "X-Reviewer-ID"

// Logger writes one access log line per request. Client errors log at WARN and
// server errors at ERROR; handler errors attached with c.Error are included.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		requestLogger := logger
		if correlationID := GetCorrelationID(c); correlationID != "" {
			requestLogger = logger.With("correlation_id", correlationID)
		}
		if reviewer := c.GetHeader(ReviewerIDHeader); reviewer != "" {
			requestLogger = requestLogger.With("reviewer_id", reviewer)
		}

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			requestLogger.Error("HTTP request", attrs...)
		case status >= 400:
			requestLogger.Warn("HTTP request", attrs...)
		default:
			requestLogger.Info("HTTP request", attrs...)
		}
	}
}
