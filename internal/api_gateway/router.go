package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/capital-cycle-ledger/internal/api_gateway/handler"
	"github.com/capital-cycle-ledger/internal/api_gateway/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type handlers struct {
	tasks    *handler.TaskHandler
	reviews  *handler.ReviewHandler
	accounts *handler.AccountHandler
	pool     *handler.PoolHandler
	stats    *handler.StatsHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())

	v1 := r.Group("/api/v1")
	{
		accounts := v1.Group("/accounts/:id")
		{
			accounts.POST("/deposits", h.tasks.CreateDeposit)
			accounts.POST("/withdrawals", h.tasks.CreateWithdrawal)
			accounts.POST("/liquidations", h.tasks.CreateLiquidation)
			accounts.POST("/reservations", h.accounts.Reserve)
			accounts.POST("/reinvest", h.accounts.Reinvest)
			accounts.GET("/cycle", h.accounts.CycleProgress)
			accounts.GET("/activity", h.accounts.Activity)
		}

		tasks := v1.Group("/tasks")
		{
			tasks.GET("", h.tasks.List)
			tasks.GET("/:id", h.tasks.GetByID)
			tasks.POST("/:id/approve", h.reviews.Approve)
			tasks.POST("/:id/reject", h.reviews.Reject)
		}

		pool := v1.Group("/pool")
		{
			pool.GET("/inventory", h.pool.Inventory)
			pool.POST("/addresses", h.pool.Import)
			pool.POST("/addresses/:id/release", h.pool.Release)
			pool.POST("/addresses/:id/withdraw", h.pool.Withdraw)
			pool.DELETE("/addresses/:id", h.pool.Withdraw)
		}

		v1.GET("/stats", h.stats.Overview)
		v1.GET("/audit/:entity/:id", h.stats.AuditTrail)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
