package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/capital-cycle-ledger/internal/config"
	"github.com/capital-cycle-ledger/internal/data/mongo"
	"github.com/capital-cycle-ledger/internal/data/postgres"
	"github.com/capital-cycle-ledger/internal/logger"
	"github.com/capital-cycle-ledger/internal/platform/messaging/consumers"
	"github.com/capital-cycle-ledger/internal/platform/messaging/producers"
	"github.com/capital-cycle-ledger/internal/platform/persistence"
	"github.com/capital-cycle-ledger/internal/settlement/components"
	"github.com/capital-cycle-ledger/internal/settlement/consumer"
	"github.com/capital-cycle-ledger/internal/settlement/outbox_poller"
	"github.com/capital-cycle-ledger/internal/settlement/scheduler"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("settlement_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Settlement Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

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

	if err := producers.EnsureTopics(cfg.Kafka.Brokers, cfg.Kafka.NumPartitions, cfg.Kafka.ReplicationFactor, log,
		cfg.Kafka.TaskRequestTopic, cfg.Kafka.LedgerEventsTopic, cfg.Kafka.PoolAlertsTopic, cfg.Kafka.DLQTopic); err != nil {
		log.Error("Failed to ensure Kafka topics", "error", err)
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
	if err := mongoDB.EnsureIndexes(appCtx, mongo.FeedCollectionName, mongo.FeedIndexes); err != nil {
		log.Error("Failed to ensure feed indexes", "error", err)
		os.Exit(1)
	}
	if err := mongoDB.EnsureIndexes(appCtx, mongo.AuditCollectionName, mongo.AuditIndexes); err != nil {
		log.Error("Failed to ensure audit indexes", "error", err)
		os.Exit(1)
	}

	poolAlerts, err := producers.NewPoolAlertNotifier(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize pool alert notifier", "error", err)
		os.Exit(1)
	}

	ledgerEvents, err := producers.NewLedgerEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize ledger event producer", "error", err)
		os.Exit(1)
	}

	// dlqProducer is nil when no DLQ topic is configured
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	settlement, err := components.CreateServices(postgresDB, repos, auditRepo, poolAlerts, log, cfg)
	if err != nil {
		log.Error("Failed to create settlement services", "error", err)
		os.Exit(1)
	}

	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)
	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}
	requestHandler := consumer.NewTaskRequestHandler(log, settlement.Tasks, deadLetters)

	ledgerPublisher := outbox_poller.NewLedgerPublisher(repos.Outbox, feedRepo, ledgerEvents, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, repos.Outbox, ledgerPublisher, log)

	passes := scheduler.New(&cfg.Scheduler, settlement.Batch, log)

	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	log.Info("Starting Kafka consumer",
		"topic", cfg.Kafka.TaskRequestTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Subscribe(appCtx, requestHandler.HandleMessage); err != nil {
		errChan <- fmt.Errorf("kafka consumer error: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	passes.Start(appCtx)
	log.Info("Scheduled passes started", "passes", passes.Jobs())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	log.Info("Waiting for services to stop...")
	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		passes.Wait()
		<-kafkaConsumer.Done()
		close(stopped)
	}()

	select {
	case <-stopped:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	log.Info("Shutting down batch worker pool", "running_workers", settlement.Batch.Running())
	settlement.Batch.Shutdown()

	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}
	if err = ledgerEvents.Close(); err != nil {
		log.Error("Error closing ledger event producer", "error", err)
	}
	if err = poolAlerts.Close(); err != nil {
		log.Error("Error closing pool alert notifier", "error", err)
	}
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Settlement Worker shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Settlement Worker shutdown completed with errors")
	} else {
		log.Info("Settlement Worker shutdown completed successfully")
	}
}
