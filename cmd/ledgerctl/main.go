package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/capital-cycle-ledger/internal/cli"
	"github.com/capital-cycle-ledger/internal/config"
	"github.com/capital-cycle-ledger/internal/data/mongo"
	"github.com/capital-cycle-ledger/internal/data/postgres"
	"github.com/capital-cycle-ledger/internal/logger"
	"github.com/capital-cycle-ledger/internal/platform/persistence"
	"github.com/capital-cycle-ledger/internal/settlement/components"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig("ledgerctl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	// stdout is reserved for command output
	log := logger.New(os.Stderr, cfg)

	open := func(ctx context.Context) (*cli.Runtime, error) {
		postgresDB, err := persistence.NewPostgresDB(ctx, log, &cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		mongoDB, err := persistence.NewMongoDB(ctx, log, &cfg.MongoDB)
		if err != nil {
			postgresDB.Close()
			return nil, fmt.Errorf("failed to initialize MongoDB: %w", err)
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
		// No notifier: low-inventory alerts are the worker's job
		svc, err := components.CreateServices(postgresDB, repos, mongo.NewAuditRepository(log, mongoDB.Database()), nil, log, cfg)
		if err != nil {
			postgresDB.Close()
			_ = mongoDB.Close(context.Background())
			return nil, err
		}

		return &cli.Runtime{
			Passes:                svc.Batch,
			Pool:                  svc.Pools,
			Plans:                 repos.Plans,
			Settings:              repos.Settings,
			DefaultCommissionRate: cfg.Referral.DefaultCommissionRate,
			Close: func() {
				svc.Batch.Shutdown()
				postgresDB.Close()
				if err := mongoDB.Close(context.Background()); err != nil {
					log.Error("Error closing MongoDB connection", "error", err)
				}
			},
		}, nil
	}

	if err := cli.Execute(ctx, open, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
