package components

import (
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/config"
	"github.com/capital-cycle-ledger/internal/domain/account"
	"github.com/capital-cycle-ledger/internal/domain/audit"
	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/outbox"
	"github.com/capital-cycle-ledger/internal/domain/plan"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/settings"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/capital-cycle-ledger/internal/settlement/service"
)

// Repositories groups the stores the settlement services are built on.
type Repositories struct {
	Accounts  account.Repository
	Ledger    ledger.Repository
	Outbox    outbox.Repository
	Tasks     task.Repository
	Addresses pool.Repository
	Plans     plan.Repository
	Settings  settings.Repository
}

// Services is the wired settlement engine.
type Services struct {
	Tasks      *service.TaskService
	Settlement *service.SettlementService
	Pools      *service.PoolService
	Engine     *service.EngineService
	Batch      *service.BatchRunner
}

// CreateServices builds every settlement service with its components.
// The audit sink and notifier may be nil, in which case events are only logged.
func CreateServices(
	db service.TxRunner,
	repos Repositories,
	sink audit.Sink,
	notifier pool.Notifier,
	logger *slog.Logger,
	cfg *config.Config,
) (*Services, error) {
	accounts := NewAccountManager(repos.Accounts, logger)
	ledgerWriter := NewLedgerWriter(repos.Ledger, repos.Outbox, logger)
	cycleAccountant := NewCycleAccountant(repos.Ledger)
	addresses := NewAddressAllocator(repos.Addresses, repos.Tasks, logger)
	referrals := NewReferralRewarder(repos.Accounts, repos.Ledger, repos.Settings, cfg.Referral, logger)
	auditRecorder := NewAuditRecorder(sink, logger)
	inventory := NewInventoryWatcher(repos.Addresses, notifier, cfg.Pool.LowInventoryThreshold, logger)
	validator := NewRequestValidator(logger)

	tasks := service.NewTaskService(db, repos.Tasks, repos.Accounts, accounts, ledgerWriter, cycleAccountant,
		addresses, validator, auditRecorder, inventory, logger.With("component", "tasks"))
	settlement := service.NewSettlementService(db, repos.Tasks, accounts, ledgerWriter, cycleAccountant,
		addresses, referrals, auditRecorder, inventory, logger.With("component", "settlement"))
	pools := service.NewPoolService(db, repos.Addresses, repos.Tasks, addresses, auditRecorder, inventory,
		logger.With("component", "pool"))
	engine := service.NewEngineService(db, repos.Plans, accounts, ledgerWriter, cycleAccountant, auditRecorder,
		cfg.Scheduler.CommissionPeriodDays, nil, logger.With("component", "engine"))

	batch, err := service.NewBatchRunner(repos.Accounts, engine, pools, service.BatchConfig{
		WorkerPoolSize:          cfg.WorkerPool.Size,
		PageSize:                cfg.Scheduler.BatchSize,
		ReservationTimeoutHours: cfg.Scheduler.ReservationTimeoutHours,
	}, logger.With("component", "batch"))
	if err != nil {
		logger.Error("Failed to create batch worker pool", "pool_size", cfg.WorkerPool.Size, "error", err)
		return nil, fmt.Errorf("failed to create batch runner: %w", err)
	}

	logger.Info("Created settlement services", "pool_size", cfg.WorkerPool.Size)
	return &Services{
		Tasks:      tasks,
		Settlement: settlement,
		Pools:      pools,
		Engine:     engine,
		Batch:      batch,
	}, nil
}
