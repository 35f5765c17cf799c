package handler

import (
	"log/slog"

	"github.com/capital-cycle-ledger/internal/api_gateway/middleware"
	"github.com/capital-cycle-ledger/internal/api_gateway/service"
	"github.com/capital-cycle-ledger/internal/domain/task"
	settlement "github.com/capital-cycle-ledger/internal/settlement/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReviewerTierHeader carries the reviewer's tier: FIRST_TIER, SECOND_TIER or COLLABORATOR
const ReviewerTierHeader = "X-Reviewer-Tier"

// ReviewHandler approves and rejects tasks
type ReviewHandler struct {
	reviews service.ReviewService
	logger  *slog.Logger
}

func NewReviewHandler(logger *slog.Logger, reviews service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, logger: logger}
}

// reviewer reads the acting staff member from the request headers. Identity is
// asserted by the upstream auth proxy.
func reviewer(c *gin.Context) (task.Reviewer, bool) {
	id, err := uuid.Parse(c.GetHeader(middleware.ReviewerIDHeader))
	if err != nil || id == uuid.Nil {
		RespondUnauthorized(c, "missing or invalid "+middleware.ReviewerIDHeader)
		return task.Reviewer{}, false
	}
	tier, ok := task.ParseTier(c.GetHeader(ReviewerTierHeader))
	if !ok {
		RespondUnauthorized(c, "missing or invalid "+ReviewerTierHeader)
		return task.Reviewer{}, false
	}
	return task.Reviewer{ID: id, Tier: tier}, true
}

// Approve pre-approves or settles a task depending on the reviewer's authority
func (h *ReviewHandler) Approve(c *gin.Context) {
	taskID, ok := pathUUID(c, "id", "task")
	if !ok {
		return
	}
	r, ok := reviewer(c)
	if !ok {
		return
	}
	var req ApproveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}
	if req.ReceivedAmount.Valid && !req.ReceivedAmount.Decimal.IsPositive() {
		RespondBadRequest(c, "received_amount must be positive")
		return
	}

	t, err := h.reviews.Approve(c.Request.Context(), settlement.ApproveInput{
		TaskID:         taskID,
		Reviewer:       r,
		ReceivedAmount: req.ReceivedAmount,
		ProofRef:       req.ProofRef,
	})
	if err != nil {
		RespondServiceError(c, h.logger, "approve task", err)
		return
	}
	RespondOK(c, mapTaskToResponse(t))
}

// Reject pre-rejects or rejects a task depending on the reviewer's authority
func (h *ReviewHandler) Reject(c *gin.Context) {
	taskID, ok := pathUUID(c, "id", "task")
	if !ok {
		return
	}
	r, ok := reviewer(c)
	if !ok {
		return
	}
	var req RejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	t, err := h.reviews.Reject(c.Request.Context(), taskID, r, req.Reason)
	if err != nil {
		RespondServiceError(c, h.logger, "reject task", err)
		return
	}
	RespondOK(c, mapTaskToResponse(t))
}
