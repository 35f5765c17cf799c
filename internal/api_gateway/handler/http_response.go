package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/capital-cycle-ledger/internal/api_gateway/middleware"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// Response is the envelope every endpoint answers with. Exactly one of Data
// and Error is set.
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Meta          *MetaInfo   `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MetaInfo is only present on paged listings.
type MetaInfo struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
	TotalItems int `json:"total_items,omitempty"`
}

func newMeta(page, perPage, totalItems int) *MetaInfo {
	return &MetaInfo{
		Page:       page,
		PerPage:    perPage,
		TotalPages: (totalItems + perPage - 1) / perPage,
		TotalItems: totalItems,
	}
}

func send(c *gin.Context, status int, resp Response) {
	resp.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(status, resp)
}

func RespondOK(c *gin.Context, data interface{}) {
	send(c, http.StatusOK, Response{Data: data})
}

func RespondCreated(c *gin.Context, data interface{}) {
	send(c, http.StatusCreated, Response{Data: data})
}

// RespondAccepted is used when the work is queued for the settlement worker.
func RespondAccepted(c *gin.Context, data interface{}) {
	send(c, http.StatusAccepted, Response{Data: data})
}

// RespondWithPaginatedData answers a paged listing. perPage must be positive.
func RespondWithPaginatedData(c *gin.Context, statusCode int, data interface{}, page, perPage, totalItems int) {
	send(c, statusCode, Response{Data: data, Meta: newMeta(page, perPage, totalItems)})
}

func respondError(c *gin.Context, status int, code, message string) {
	send(c, status, Response{Error: &ErrorInfo{Code: code, Message: message}})
}

func RespondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// RespondUnauthorized is for missing or unusable reviewer identity headers.
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Unauthorized"
	}
	respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// errorMapping pairs a domain sentinel with its HTTP status and error code.
// The first match wins.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{shared.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{shared.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{shared.ErrAlreadySettled, http.StatusConflict, "ALREADY_SETTLED"},
	{shared.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
	{shared.ErrPoolExhausted, http.StatusServiceUnavailable, "POOL_EXHAUSTED"},
	{shared.ErrInsufficientFunds, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
	{shared.ErrCycleCapExceeded, http.StatusUnprocessableEntity, "CYCLE_CAP_EXCEEDED"},
	{shared.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{shared.ErrInvalidRequest, http.StatusBadRequest, "BAD_REQUEST"},
}

// RespondServiceError maps a service error onto the error taxonomy. Unknown
// errors are logged and answered with a 500 that hides the cause.
func RespondServiceError(c *gin.Context, logger *slog.Logger, op string, err error) {
	_ = c.Error(err)
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			respondError(c, m.status, m.code, err.Error())
			return
		}
	}
	logger.Error("Failed to "+op, "error", err, "correlation_id", middleware.GetCorrelationID(c))
	respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}
