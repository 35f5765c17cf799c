package handler

import (
	"log/slog"
	"net/http"

	"github.com/capital-cycle-ledger/internal/api_gateway/service"
	"github.com/gin-gonic/gin"
)

// AccountHandler serves the account-facing operations that run synchronously:
// address reservations, reinvestment, cycle progress and activity history
type AccountHandler struct {
	tasks    service.TaskQueryService
	activity service.ActivityService
	logger   *slog.Logger
}

func NewAccountHandler(logger *slog.Logger, tasks service.TaskQueryService, activity service.ActivityService) *AccountHandler {
	return &AccountHandler{
		tasks:    tasks,
		activity: activity,
		logger:   logger,
	}
}

// Reserve hands out a deposit address. The returned reservation id is passed
// back when the deposit is requested.
func (h *AccountHandler) Reserve(c *gin.Context) {
	accountID, ok := pathUUID(c, "id", "account")
	if !ok {
		return
	}
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if !req.Amount.IsPositive() {
		RespondBadRequest(c, "amount must be positive")
		return
	}

	addr, err := h.tasks.Reserve(c.Request.Context(), accountID, req.Amount)
	if err != nil {
		RespondServiceError(c, h.logger, "reserve address", err)
		return
	}
	RespondCreated(c, mapAddressToResponse(addr))
}

func (h *AccountHandler) Reinvest(c *gin.Context) {
	accountID, ok := pathUUID(c, "id", "account")
	if !ok {
		return
	}
	entry, err := h.tasks.Reinvest(c.Request.Context(), accountID)
	if err != nil {
		RespondServiceError(c, h.logger, "reinvest", err)
		return
	}
	RespondCreated(c, mapEntryToResponse(entry))
}

func (h *AccountHandler) CycleProgress(c *gin.Context) {
	accountID, ok := pathUUID(c, "id", "account")
	if !ok {
		return
	}
	progress, err := h.tasks.CycleProgress(c.Request.Context(), accountID)
	if err != nil {
		RespondServiceError(c, h.logger, "get cycle progress", err)
		return
	}
	RespondOK(c, progress)
}

// Activity returns the account's ledger history from the activity feed
func (h *AccountHandler) Activity(c *gin.Context) {
	accountID, ok := pathUUID(c, "id", "account")
	if !ok {
		return
	}
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	entries, total, err := h.activity.AccountActivity(c.Request.Context(), accountID, pagination.Page, pagination.PerPage)
	if err != nil {
		RespondServiceError(c, h.logger, "get account activity", err)
		return
	}
	RespondWithPaginatedData(c, http.StatusOK, mapEntriesToResponse(entries), pagination.Page, pagination.PerPage, int(total))
}
