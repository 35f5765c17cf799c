package api_gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/capital-cycle-ledger/internal/api_gateway/handler"
	"github.com/capital-cycle-ledger/internal/api_gateway/service"
	"github.com/capital-cycle-ledger/internal/config"
	"github.com/gin-gonic/gin"
)

// Services are the backends the HTTP handlers call
type Services struct {
	TaskRequests service.TaskRequestService
	Activity     service.ActivityService
	Tasks        service.TaskQueryService
	Reviews      service.ReviewService
	Pool         service.PoolAdminService
}

// Server handles HTTP requests and manages the application's lifecycle
type Server struct {
	logger          *slog.Logger
	httpServer      *http.Server
	httpRouter      *gin.Engine
	shutdownTimeout time.Duration
}

// NewServer creates and configures a new HTTP server with the given services
func NewServer(log *slog.Logger, cfg *config.Config, svc Services) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()
	setupRouter(log, httpRouter, handlers{
		tasks:    handler.NewTaskHandler(log, svc.TaskRequests, svc.Tasks),
		reviews:  handler.NewReviewHandler(log, svc.Reviews),
		accounts: handler.NewAccountHandler(log, svc.Tasks, svc.Activity),
		pool:     handler.NewPoolHandler(log, svc.Pool),
		stats:    handler.NewStatsHandler(log, svc.Activity, svc.Pool),
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:          log,
		httpServer:      httpServer,
		httpRouter:      httpRouter,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server within the configured shutdown timeout
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
