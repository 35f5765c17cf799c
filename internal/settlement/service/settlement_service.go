// Package service holds the settlement engine's transactional use cases: task
// review, task creation, address pool administration and the scheduled
// commission and accrual passes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/audit"
	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/capital-cycle-ledger/internal/platform/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ApproveInput carries a reviewer's approval. ReceivedAmount overrides the
// requested amount of a deposit when set.
type ApproveInput struct {
	TaskID         uuid.UUID
	Reviewer       task.Reviewer
	ReceivedAmount decimal.NullDecimal
	ProofRef       string
}

// SettlementService moves tasks through review to their ledger effect.
type SettlementService struct {
	db        TxRunner
	taskRepo  task.Repository
	accounts  AccountManager
	ledger    LedgerWriter
	cycle     CycleAccountant
	addresses AddressAllocator
	referrals ReferralRewarder
	audit     AuditRecorder
	inventory InventoryWatcher
	logger    *slog.Logger
}

func NewSettlementService(
	db TxRunner,
	taskRepo task.Repository,
	accounts AccountManager,
	ledgerWriter LedgerWriter,
	cycle CycleAccountant,
	addresses AddressAllocator,
	referrals ReferralRewarder,
	auditRecorder AuditRecorder,
	inventory InventoryWatcher,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		db:        db,
		taskRepo:  taskRepo,
		accounts:  accounts,
		ledger:    ledgerWriter,
		cycle:     cycle,
		addresses: addresses,
		referrals: referrals,
		audit:     auditRecorder,
		inventory: inventory,
		logger:    logger,
	}
}

// Approve routes the approval by reviewer tier. A first-tier reviewer on a
// direct task only pre-approves; every other permitted path settles the task
// and applies its ledger effect in the same transaction.
func (s *SettlementService) Approve(ctx context.Context, in ApproveInput) (*task.Task, error) {
	start := time.Now()
	logger := s.logger.With("task_id", in.TaskID.String(), "reviewer_id", in.Reviewer.ID.String(), "tier", string(in.Reviewer.Tier))

	var (
		result *task.Task
		events []audit.Event
		claim  pool.Claim
	)
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		events, claim = nil, ""

		tasks := s.taskRepo.WithTx(tx)
		t, err := tasks.LockForUpdate(ctx, in.TaskID)
		if err != nil {
			return err
		}
		before := *t

		decision, err := task.Route(t, in.Reviewer)
		if err != nil {
			return err
		}
		if t.Status == task.StatusPreRejected {
			return shared.InvalidStateError{Entity: "task", Status: string(t.Status), Op: "approve"}
		}

		if decision == task.DecisionPreReview {
			t.PreReview(in.Reviewer.ID, task.StatusPreApproved, "")
			if err := tasks.Update(ctx, t); err != nil {
				return err
			}
			result = t
			events = append(events, s.taskEvent(in.Reviewer, audit.ActionTaskPreApproved, &before, t))
			return nil
		}

		amount := t.RequestedAmount
		switch t.Kind {
		case task.KindDepositAuto, task.KindDepositManual:
			amount = t.SettlementAmount(in.ReceivedAmount)
			claim, err = s.settleDeposit(ctx, tx, t, amount)
		case task.KindWithdrawal:
			err = s.settleWithdrawal(ctx, tx, t, amount)
		case task.KindLiquidation:
			err = s.settleLiquidation(ctx, tx, t, amount)
		default:
			err = fmt.Errorf("unknown task kind %q", t.Kind)
		}
		if err != nil {
			return err
		}

		t.Complete(in.Reviewer.ID, amount, in.ProofRef)
		if err := tasks.Update(ctx, t); err != nil {
			return err
		}
		result = t
		events = append(events, s.taskEvent(in.Reviewer, audit.ActionTaskCompleted, &before, t))
		if claim == pool.ClaimLost {
			events = append(events, audit.NewEvent(in.Reviewer.ID, string(in.Reviewer.Tier), audit.ActionAddressClaimLost,
				audit.EntityAddress, t.AssignedAddressID.String(), nil, t))
		}
		return nil
	})
	metrics.ObserveSettlement("approve", start)
	if err != nil {
		metrics.SettlementErrors.WithLabelValues("approve", metrics.ErrorClass(err)).Inc()
		logger.Warn("Task approval failed", "error", err)
		return nil, err
	}

	metrics.TaskSettlements.WithLabelValues(string(result.Kind), string(result.Status)).Inc()
	logger.Info("Task approved", "status", string(result.Status), "kind", string(result.Kind))
	s.audit.Record(ctx, events...)
	if claim == pool.ClaimReserved {
		s.inventory.Check(ctx)
	}
	return result, nil
}

// settleDeposit credits capital, or profit for a manual profit credit, and
// consumes the attached address. It reports the task's claim on that address,
// empty when none was attached.
func (s *SettlementService) settleDeposit(ctx context.Context, tx pgx.Tx, t *task.Task, amount decimal.Decimal) (pool.Claim, error) {
	acc, err := s.accounts.Lock(ctx, tx, t.AccountID)
	if err != nil {
		return "", err
	}

	var entries []*ledger.Entry
	if t.ProfitCredit {
		progress, err := s.cycle.Progress(ctx, tx, acc)
		if err != nil {
			return "", err
		}
		completes, err := progress.Admit(amount)
		if err != nil {
			return "", err
		}
		if err := acc.CreditProfit(amount); err != nil {
			return "", err
		}
		if completes {
			acc.CycleCompleted = true
		}
		entries = append(entries, ledger.NewEntry(acc.ID, ledger.KindProfit, ledger.TagManualAdjustment, amount, "Manual profit credit", &t.ID))
	} else {
		hasDeposits, err := s.accounts.HasDeposits(ctx, tx, acc.ID)
		if err != nil {
			return "", err
		}
		if err := acc.Deposit(amount); err != nil {
			return "", err
		}
		entries = append(entries, ledger.NewEntry(acc.ID, ledger.KindDeposit, ledger.TagNone, amount, "Deposit", &t.ID))

		if !hasDeposits {
			referral, err := s.referrals.OnFirstDeposit(ctx, tx, acc, amount, t.ID)
			if err != nil {
				return "", err
			}
			entries = append(entries, referral...)
		}
	}

	if err := s.accounts.Save(ctx, tx, acc); err != nil {
		return "", err
	}
	if err := s.ledger.Append(ctx, tx, entries...); err != nil {
		return "", err
	}

	if t.AssignedAddressID == nil {
		return "", nil
	}
	return s.addresses.Consume(ctx, tx, t, amount)
}

// settleWithdrawal pays out of the balance. Draining all profit once the
// cycle target is met resets the account and closes the cycle.
func (s *SettlementService) settleWithdrawal(ctx context.Context, tx pgx.Tx, t *task.Task, amount decimal.Decimal) error {
	acc, err := s.accounts.Lock(ctx, tx, t.AccountID)
	if err != nil {
		return err
	}
	if amount.GreaterThan(acc.Balance) {
		return shared.ErrInsufficientFunds
	}

	progress, err := s.cycle.Progress(ctx, tx, acc)
	if err != nil {
		return err
	}

	tag := ledger.TagNone
	reference := "Withdrawal"
	if progress.Completed && amount.GreaterThanOrEqual(acc.Profit()) {
		tag = ledger.TagCycleReset
		reference = "Withdrawal closing a completed cycle"
		if err := acc.Withdraw(amount); err != nil {
			return err
		}
		cleared := acc.ResetCycle()
		s.logger.Info("Account reset after completed cycle",
			"account_id", acc.ID.String(),
			"task_id", t.ID.String(),
			"cleared_balance", cleared.String(),
		)
	} else if err := acc.Withdraw(amount); err != nil {
		return err
	}

	if err := s.accounts.Save(ctx, tx, acc); err != nil {
		return err
	}
	return s.ledger.Append(ctx, tx, ledger.NewEntry(acc.ID, ledger.KindWithdrawal, tag, amount, reference, &t.ID))
}

// settleLiquidation returns the requested principal, forfeits the rest and blocks the account.
func (s *SettlementService) settleLiquidation(ctx context.Context, tx pgx.Tx, t *task.Task, amount decimal.Decimal) error {
	acc, err := s.accounts.Lock(ctx, tx, t.AccountID)
	if err != nil {
		return err
	}
	if amount.GreaterThan(acc.Balance) {
		return shared.ErrInsufficientFunds
	}

	acc.Liquidate("early liquidation " + t.ID.String())
	if err := s.accounts.Save(ctx, tx, acc); err != nil {
		return err
	}
	return s.ledger.Append(ctx, tx, ledger.NewEntry(acc.ID, ledger.KindWithdrawal, ledger.TagEarlyLiquidation, amount, "Early liquidation", &t.ID))
}

// Reject routes like Approve. A terminal rejection gives back the task's claim
// on its address.
func (s *SettlementService) Reject(ctx context.Context, taskID uuid.UUID, reviewer task.Reviewer, reason string) (*task.Task, error) {
	start := time.Now()
	logger := s.logger.With("task_id", taskID.String(), "reviewer_id", reviewer.ID.String(), "tier", string(reviewer.Tier))

	var (
		result *task.Task
		events []audit.Event
	)
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		result, events, err = s.reject(ctx, tx, taskID, reviewer, reason)
		return err
	})
	metrics.ObserveSettlement("reject", start)
	if err != nil {
		metrics.SettlementErrors.WithLabelValues("reject", metrics.ErrorClass(err)).Inc()
		logger.Warn("Task rejection failed", "error", err)
		return nil, err
	}

	metrics.TaskSettlements.WithLabelValues(string(result.Kind), string(result.Status)).Inc()
	logger.Info("Task rejected", "status", string(result.Status), "reason", reason)
	s.audit.Record(ctx, events...)
	return result, nil
}

func (s *SettlementService) reject(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, reviewer task.Reviewer, reason string) (*task.Task, []audit.Event, error) {
	tasks := s.taskRepo.WithTx(tx)
	t, err := tasks.LockForUpdate(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	before := *t

	decision, err := task.Route(t, reviewer)
	if err != nil {
		return nil, nil, err
	}

	if decision == task.DecisionPreReview {
		t.PreReview(reviewer.ID, task.StatusPreRejected, reason)
		if err := tasks.Update(ctx, t); err != nil {
			return nil, nil, err
		}
		return t, []audit.Event{s.taskEvent(reviewer, audit.ActionTaskPreRejected, &before, t)}, nil
	}

	events := []audit.Event{}
	released, err := s.addresses.Detach(ctx, tx, t)
	if err != nil {
		return nil, nil, err
	}
	if released {
		events = append(events, audit.NewEvent(reviewer.ID, string(reviewer.Tier), audit.ActionAddressReleased,
			audit.EntityAddress, t.AssignedAddressID.String(), nil, map[string]string{"task_id": t.ID.String()}))
	}

	t.Reject(reviewer.ID, reason)
	if err := tasks.Update(ctx, t); err != nil {
		return nil, nil, err
	}
	events = append(events, s.taskEvent(reviewer, audit.ActionTaskRejected, &before, t))
	return t, events, nil
}

func (s *SettlementService) taskEvent(reviewer task.Reviewer, action string, before, after *task.Task) audit.Event {
	return audit.NewEvent(reviewer.ID, string(reviewer.Tier), action, audit.EntityTask, after.ID.String(), before, after)
}
