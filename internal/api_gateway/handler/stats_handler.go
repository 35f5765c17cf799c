package handler

import (
	"log/slog"
	"strconv"

	"github.com/capital-cycle-ledger/internal/api_gateway/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
	defaultTrailLimit  = 20
)

// StatsHandler serves the dashboard read models
type StatsHandler struct {
	activity service.ActivityService
	pool     service.PoolAdminService
	logger   *slog.Logger
}

func NewStatsHandler(logger *slog.Logger, activity service.ActivityService, pool service.PoolAdminService) *StatsHandler {
	return &StatsHandler{activity: activity, pool: pool, logger: logger}
}

// Overview returns the pool inventory and the most recent ledger activity
func (h *StatsHandler) Overview(c *gin.Context) {
	limit, ok := queryLimit(c, defaultRecentLimit)
	if !ok {
		return
	}

	inv, err := h.pool.Inventory(c.Request.Context())
	if err != nil {
		RespondServiceError(c, h.logger, "read pool inventory", err)
		return
	}
	recent, err := h.activity.Recent(c.Request.Context(), limit)
	if err != nil {
		RespondServiceError(c, h.logger, "read recent activity", err)
		return
	}

	RespondOK(c, gin.H{
		"pool":            inv,
		"recent_activity": mapEntriesToResponse(recent),
	})
}

// AuditTrail returns the recorded audit events of a task, address or account.
func (h *StatsHandler) AuditTrail(c *gin.Context) {
	entityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid entity ID")
		return
	}
	limit, ok := queryLimit(c, defaultTrailLimit)
	if !ok {
		return
	}

	events, err := h.activity.AuditTrail(c.Request.Context(), c.Param("entity"), entityID, limit)
	if err != nil {
		RespondServiceError(c, h.logger, "read audit trail", err)
		return
	}
	RespondOK(c, events)
}

// queryLimit reads ?limit, answering 400 itself when it is out of range.
func queryLimit(c *gin.Context, fallback int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxRecentLimit {
		RespondBadRequest(c, "limit must be between 1 and "+strconv.Itoa(maxRecentLimit))
		return 0, false
	}
	return n, true
}
