package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/capital-cycle-ledger/internal/platform/metrics"
	"github.com/gin-gonic/gin"
)

type panicError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type panicBody struct {
	Error         panicError `json:"error"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

// Recovery builds on gin's recovery so broken client connections are still
// told apart from handler panics. A panic is logged through slog with its
// stack and answered with a 500 in the API error envelope.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		correlationID := GetCorrelationID(c)
		logger.Error("Handler panicked",
			"panic", recovered,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"correlation_id", correlationID,
			"stack", string(debug.Stack()),
		)
		metrics.SettlementErrors.WithLabelValues("http", "panic").Inc()

		c.AbortWithStatusJSON(http.StatusInternalServerError, panicBody{
			Error:         panicError{Code: "INTERNAL_SERVER_ERROR", Message: "An internal server error occurred"},
			CorrelationID: correlationID,
		})
	})
}
