package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/account"
	"github.com/capital-cycle-ledger/internal/domain/audit"
	"github.com/capital-cycle-ledger/internal/domain/cycle"
	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TaskService creates tasks and reservations and answers account-facing queries.
type TaskService struct {
	db          TxRunner
	taskRepo    task.Repository
	accountRepo account.Repository
	accounts    AccountManager
	ledger      LedgerWriter
	cycle       CycleAccountant
	addresses   AddressAllocator
	validator   RequestValidator
	audit       AuditRecorder
	inventory   InventoryWatcher
	logger      *slog.Logger
}

func NewTaskService(
	db TxRunner,
	taskRepo task.Repository,
	accountRepo account.Repository,
	accounts AccountManager,
	ledgerWriter LedgerWriter,
	cycle CycleAccountant,
	addresses AddressAllocator,
	validator RequestValidator,
	auditRecorder AuditRecorder,
	inventory InventoryWatcher,
	logger *slog.Logger,
) *TaskService {
	return &TaskService{
		db:          db,
		taskRepo:    taskRepo,
		accountRepo: accountRepo,
		accounts:    accounts,
		ledger:      ledgerWriter,
		cycle:       cycle,
		addresses:   addresses,
		validator:   validator,
		audit:       auditRecorder,
		inventory:   inventory,
		logger:      logger,
	}
}

// Process creates the task a request describes. A request whose id already
// names a task returns that task unchanged, so redelivered messages are harmless.
func (s *TaskService) Process(ctx context.Context, req *task.Request) (*task.Task, error) {
	logger := s.logger
	if req.CorrelationID != "" {
		logger = s.logger.With("correlation_id", req.CorrelationID)
	}

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	if req.RequestID != uuid.Nil {
		existing, err := s.taskRepo.GetByID(ctx, req.RequestID)
		if err == nil {
			logger.Info("Task already exists for request", "task_id", existing.ID.String())
			return existing, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}

	var created *task.Task
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		created, err = s.create(ctx, tx, req)
		return err
	})
	if err != nil {
		logger.Warn("Failed to create task", "account_id", req.AccountID.String(), "kind", string(req.Kind), "error", err)
		return nil, err
	}

	logger.Info("Task created",
		"task_id", created.ID.String(),
		"account_id", created.AccountID.String(),
		"kind", string(created.Kind),
		"amount", created.RequestedAmount.String(),
	)
	s.audit.Record(ctx, audit.NewEvent(created.AccountID, "account", audit.ActionTaskCreated, audit.EntityTask, created.ID.String(), nil, created))
	return created, nil
}

func (s *TaskService) create(ctx context.Context, tx pgx.Tx, req *task.Request) (*task.Task, error) {
	acc, err := s.accounts.LockActive(ctx, tx, req.AccountID)
	if err != nil {
		return nil, err
	}

	amount := req.Amount
	switch req.Kind {
	case task.KindWithdrawal:
		if amount.GreaterThan(acc.Balance) {
			return nil, shared.ErrInsufficientFunds
		}
	case task.KindLiquidation:
		if !amount.IsPositive() {
			amount = acc.Capital
		}
		if !amount.IsPositive() {
			return nil, fmt.Errorf("%w: nothing to liquidate", shared.ErrInvalidAmount)
		}
		if amount.GreaterThan(acc.Balance) {
			return nil, shared.ErrInsufficientFunds
		}
	}

	t := task.NewTask(acc.ID, req.Kind, amount)
	if req.RequestID != uuid.Nil {
		t.ID = req.RequestID
	}
	t.ProfitCredit = req.ProfitCredit
	t.CollaboratorID = req.CollaboratorID
	t.DestinationCollaboratorID = req.DestinationCollaboratorID
	t.ProofRef = req.ProofRef

	if req.Kind == task.KindDepositAuto {
		addr, err := s.addresses.Attach(ctx, tx, *req.ReservationID, t.ID)
		if err != nil {
			return nil, err
		}
		if addr.ReservedByAccountID == nil || *addr.ReservedByAccountID != acc.ID {
			return nil, fmt.Errorf("%w: reservation %s belongs to another account", shared.ErrForbidden, addr.ID.String())
		}
		t.AssignedAddressID = &addr.ID
	}

	if err := s.taskRepo.WithTx(tx).Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateDeposit opens a deposit task. A reservation id makes it an automatic
// deposit bound to that address.
func (s *TaskService) CreateDeposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, reservationID, collaboratorID *uuid.UUID, proofRef string) (*task.Task, error) {
	kind := task.KindDepositManual
	if reservationID != nil {
		kind = task.KindDepositAuto
	}
	return s.Process(ctx, &task.Request{
		AccountID:      accountID,
		Kind:           kind,
		Amount:         amount,
		ReservationID:  reservationID,
		CollaboratorID: collaboratorID,
		ProofRef:       proofRef,
	})
}

func (s *TaskService) CreateWithdrawal(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, destinationCollaboratorID *uuid.UUID) (*task.Task, error) {
	return s.Process(ctx, &task.Request{
		AccountID:                 accountID,
		Kind:                      task.KindWithdrawal,
		Amount:                    amount,
		DestinationCollaboratorID: destinationCollaboratorID,
	})
}

// CreateLiquidation opens an early liquidation. A zero amount returns the whole capital.
func (s *TaskService) CreateLiquidation(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*task.Task, error) {
	return s.Process(ctx, &task.Request{
		AccountID: accountID,
		Kind:      task.KindLiquidation,
		Amount:    amount,
	})
}

// Reserve hands the account a deposit address, accumulating into its open reservation if any.
func (s *TaskService) Reserve(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*pool.Address, error) {
	var addr *pool.Address
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.accounts.LockActive(ctx, tx, accountID); err != nil {
			return err
		}
		var err error
		addr, err = s.addresses.Reserve(ctx, tx, accountID, amount)
		return err
	})
	if err != nil {
		s.logger.Warn("Reservation failed", "account_id", accountID.String(), "amount", amount.String(), "error", err)
		return nil, err
	}

	s.audit.Record(ctx, audit.NewEvent(accountID, "account", audit.ActionAddressReserved, audit.EntityAddress, addr.ID.String(), nil, addr))
	s.inventory.Check(ctx)
	return addr, nil
}

// Reinvest folds the account's profit into capital and opens a new cycle.
func (s *TaskService) Reinvest(ctx context.Context, accountID uuid.UUID) (*ledger.Entry, error) {
	var entry *ledger.Entry
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		acc, err := s.accounts.LockActive(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if !acc.Profit().IsPositive() {
			return shared.InvalidStateError{Entity: "account", Status: "without profit", Op: "reinvest"}
		}

		profit := acc.Reinvest()
		if err := s.accounts.Save(ctx, tx, acc); err != nil {
			return err
		}
		entry = ledger.NewEntry(acc.ID, ledger.KindReinvest, ledger.TagNone, profit, "Profit reinvested", nil)
		return s.ledger.Append(ctx, tx, entry)
	})
	if err != nil {
		s.logger.Warn("Reinvest failed", "account_id", accountID.String(), "error", err)
		return nil, err
	}

	s.logger.Info("Profit reinvested", "account_id", accountID.String(), "amount", entry.Amount.String())
	s.audit.Record(ctx, audit.NewEvent(accountID, "account", audit.ActionReinvested, audit.EntityAccount, accountID.String(), nil, entry))
	return entry, nil
}

// CycleProgress reports the account's position in its current cycle.
func (s *TaskService) CycleProgress(ctx context.Context, accountID uuid.UUID) (cycle.Progress, error) {
	acc, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return cycle.Progress{}, err
	}
	return s.cycle.Progress(ctx, nil, acc)
}

func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	return s.taskRepo.GetByID(ctx, id)
}

// ListTasks lists an account's tasks, or every task in a status when accountID is nil.
func (s *TaskService) ListTasks(ctx context.Context, accountID uuid.UUID, status task.Status, limit, offset int) ([]*task.Task, error) {
	if accountID != uuid.Nil {
		return s.taskRepo.ListByAccount(ctx, accountID, limit, offset)
	}
	if status == "" {
		status = task.StatusPending
	}
	return s.taskRepo.ListByStatus(ctx, status, limit, offset)
}
