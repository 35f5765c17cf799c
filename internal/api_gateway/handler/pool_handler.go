package handler

import (
	"log/slog"
	"net/http"

	"github.com/capital-cycle-ledger/internal/api_gateway/service"
	"github.com/gin-gonic/gin"
)

// PoolHandler is the administrative surface of the address pool
type PoolHandler struct {
	pool   service.PoolAdminService
	logger *slog.Logger
}

func NewPoolHandler(logger *slog.Logger, pool service.PoolAdminService) *PoolHandler {
	return &PoolHandler{pool: pool, logger: logger}
}

func (h *PoolHandler) Import(c *gin.Context) {
	actor, ok := reviewer(c)
	if !ok {
		return
	}
	var req ImportAddressesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	imported, err := h.pool.Import(c.Request.Context(), actor.ID, req.Addresses)
	if err != nil {
		RespondServiceError(c, h.logger, "import addresses", err)
		return
	}
	RespondCreated(c, gin.H{"imported": imported, "submitted": len(req.Addresses)})
}

func (h *PoolHandler) Inventory(c *gin.Context) {
	inv, err := h.pool.Inventory(c.Request.Context())
	if err != nil {
		RespondServiceError(c, h.logger, "read pool inventory", err)
		return
	}
	RespondOK(c, inv)
}

// Release returns a reserved address to the pool. Open tasks keep their claim; use Withdraw to reject them.
func (h *PoolHandler) Release(c *gin.Context) {
	actor, ok := reviewer(c)
	if !ok {
		return
	}
	addressID, ok := pathUUID(c, "id", "address")
	if !ok {
		return
	}
	addr, err := h.pool.Release(c.Request.Context(), actor.ID, addressID)
	if err != nil {
		RespondServiceError(c, h.logger, "release address", err)
		return
	}
	RespondOK(c, mapAddressToResponse(addr))
}

// Withdraw force-rejects every open task on the address, then deletes it
// (DELETE) or returns it to the pool (POST .../withdraw).
func (h *PoolHandler) Withdraw(c *gin.Context) {
	actor, ok := reviewer(c)
	if !ok {
		return
	}
	addressID, ok := pathUUID(c, "id", "address")
	if !ok {
		return
	}
	remove := c.Request.Method == http.MethodDelete

	rejected, err := h.pool.DeleteOrRelease(c.Request.Context(), actor.ID, addressID, remove)
	if err != nil {
		RespondServiceError(c, h.logger, "withdraw address", err)
		return
	}
	RespondOK(c, gin.H{
		"address_id":     addressID.String(),
		"deleted":        remove,
		"rejected_tasks": mapTasksToResponse(rejected),
	})
}
