package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/capital-cycle-ledger/internal/api_gateway"
	"github.com/capital-cycle-ledger/internal/api_gateway/service"
	"github.com/capital-cycle-ledger/internal/config"
	"github.com/capital-cycle-ledger/internal/data/mongo"
	"github.com/capital-cycle-ledger/internal/data/postgres"
	"github.com/capital-cycle-ledger/internal/logger"
	"github.com/capital-cycle-ledger/internal/platform/messaging/producers"
	"github.com/capital-cycle-ledger/internal/platform/persistence"
	"github.com/capital-cycle-ledger/internal/settlement/components"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Task requests go through Kafka; the settlement worker creates the tasks
	taskProducer, err := producers.NewTaskRequestProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize task request producer", "error", err)
		os.Exit(1)
	}

	poolAlerts, err := producers.NewPoolAlertNotifier(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize pool alert notifier", "error", err)
		os.Exit(1)
	}

	repos := components.Repositories{
		Accounts:  postgres.NewAccountRepository(log, postgresDB),
		Ledger:    postgres.NewLedgerRepository(log, postgresDB),
		Outbox:    postgres.NewOutboxRepository(log, postgresDB),
		Tasks:     postgres.NewTaskRepository(log, postgresDB),
		Addresses: postgres.NewAddressRepository(log, postgresDB),
		Plans:     postgres.NewPlanRepository(log, postgresDB),
		Settings:  postgres.NewSettingsRepository(log, postgresDB),
	}
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())
	feedRepo := mongo.NewFeedRepository(log, mongoDB.Database())

	// Reservations, reviews and pool administration run synchronously in the gateway
	settlement, err := components.CreateServices(postgresDB, repos, auditRepo, poolAlerts, log, cfg)
	if err != nil {
		log.Error("Failed to create settlement services", "error", err)
		os.Exit(1)
	}

	server := api_gateway.NewServer(log, cfg, api_gateway.Services{
		TaskRequests: service.NewTaskRequestService(log, repos.Tasks, taskProducer),
		Activity:     service.NewActivityService(log, feedRepo, auditRepo),
		Tasks:        settlement.Tasks,
		Reviews:      settlement.Settlement,
		Pool:         settlement.Pools,
	})
	log.Info("REST server initialized")

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	settlement.Batch.Shutdown()
	postgresDB.Close()

	if err = taskProducer.Close(); err != nil {
		log.Error("Error closing task request producer", "error", err)
	}
	if err = poolAlerts.Close(); err != nil {
		log.Error("Error closing pool alert notifier", "error", err)
	}
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
