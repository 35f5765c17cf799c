package handler

import (
	"log/slog"

	"github.com/capital-cycle-ledger/internal/api_gateway/middleware"
	"github.com/capital-cycle-ledger/internal/api_gateway/service"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TaskHandler handles task creation and task queries
type TaskHandler struct {
	requests service.TaskRequestService
	tasks    service.TaskQueryService
	logger   *slog.Logger
}

func NewTaskHandler(logger *slog.Logger, requests service.TaskRequestService, tasks service.TaskQueryService) *TaskHandler {
	return &TaskHandler{
		requests: requests,
		tasks:    tasks,
		logger:   logger,
	}
}

// CreateDeposit queues a deposit task for the account in the path
func (h *TaskHandler) CreateDeposit(c *gin.Context) {
	accountID, ok := pathUUID(c, "id", "account")
	if !ok {
		return
	}
	var req CreateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if !req.Amount.IsPositive() {
		RespondBadRequest(c, "amount must be positive")
		return
	}

	kind := task.KindDepositManual
	if req.ReservationID != nil {
		kind = task.KindDepositAuto
	}
	h.submit(c, &task.Request{
		AccountID:      accountID,
		Kind:           kind,
		Amount:         req.Amount,
		ReservationID:  req.ReservationID,
		CollaboratorID: req.CollaboratorID,
		ProfitCredit:   req.ProfitCredit,
		ProofRef:       req.ProofRef,
	}, req.IdempotencyKey)
}

func (h *TaskHandler) CreateWithdrawal(c *gin.Context) {
	accountID, ok := pathUUID(c, "id", "account")
	if !ok {
		return
	}
	var req CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if !req.Amount.IsPositive() {
		RespondBadRequest(c, "amount must be positive")
		return
	}

	h.submit(c, &task.Request{
		AccountID:                 accountID,
		Kind:                      task.KindWithdrawal,
		Amount:                    req.Amount,
		DestinationCollaboratorID: req.DestinationCollaboratorID,
	}, req.IdempotencyKey)
}

func (h *TaskHandler) CreateLiquidation(c *gin.Context) {
	accountID, ok := pathUUID(c, "id", "account")
	if !ok {
		return
	}
	var req CreateLiquidationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}
	if req.Amount.IsNegative() {
		RespondBadRequest(c, "amount must not be negative")
		return
	}

	h.submit(c, &task.Request{
		AccountID: accountID,
		Kind:      task.KindLiquidation,
		Amount:    req.Amount,
	}, req.IdempotencyKey)
}

func (h *TaskHandler) submit(c *gin.Context, req *task.Request, idempotencyKey string) {
	req.CorrelationID = middleware.GetCorrelationID(c)

	requestID, existing, err := h.requests.Submit(c.Request.Context(), req, idempotencyKey)
	if err != nil {
		RespondServiceError(c, h.logger, "submit task request", err)
		return
	}
	if existing != nil {
		RespondOK(c, mapTaskToResponse(existing))
		return
	}

	RespondAccepted(c, gin.H{
		"task_id": requestID.String(),
		"status":  string(task.StatusPending),
	})
}

// GetByID returns a task, 404 if it does not exist (yet)
func (h *TaskHandler) GetByID(c *gin.Context) {
	id, ok := pathUUID(c, "id", "task")
	if !ok {
		return
	}
	t, err := h.tasks.GetTask(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, h.logger, "get task", err)
		return
	}
	RespondOK(c, mapTaskToResponse(t))
}

// List returns tasks for ?account_id=, or the review queue filtered by ?status=
// (PENDING by default) when no account is given.
func (h *TaskHandler) List(c *gin.Context) {
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	accountID := uuid.Nil
	if raw := c.Query("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondBadRequest(c, "Invalid account ID")
			return
		}
		accountID = id
	}

	status := task.Status(c.Query("status"))
	switch status {
	case "", task.StatusPending, task.StatusPreApproved, task.StatusPreRejected, task.StatusCompleted, task.StatusRejected:
	default:
		RespondBadRequest(c, "Invalid status")
		return
	}

	tasks, err := h.tasks.ListTasks(c.Request.Context(), accountID, status, pagination.PerPage, pagination.Offset())
	if err != nil {
		RespondServiceError(c, h.logger, "list tasks", err)
		return
	}
	RespondOK(c, mapTasksToResponse(tasks))
}

// pathUUID parses a uuid path parameter, answering 400 itself on failure.
func pathUUID(c *gin.Context, param, entity string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		RespondBadRequest(c, "Invalid "+entity+" ID")
		return uuid.Nil, false
	}
	return id, true
}
