package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/account"
	"github.com/capital-cycle-ledger/internal/domain/audit"
	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/plan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// passiveDaysPerMonth turns a monthly passive rate into a daily one.
var passiveDaysPerMonth = decimal.NewFromInt(30)

// ReturnPicker draws a plan's daily return from [min, max].
type ReturnPicker func(min, max decimal.Decimal) decimal.Decimal

// UniformReturn picks uniformly in [min, max].
func UniformReturn(min, max decimal.Decimal) decimal.Decimal {
	if !max.GreaterThan(min) {
		return min
	}
	return min.Add(max.Sub(min).Mul(decimal.NewFromFloat(rand.Float64())))
}

// Outcome is the result of one scheduled pass on one account. Applied is false
// when the account was not due.
type Outcome struct {
	AccountID uuid.UUID
	Applied   bool
	Amount    decimal.Decimal
	Completed bool
}

// EngineService charges plan commissions and accrues daily profit.
type EngineService struct {
	db               TxRunner
	planRepo         plan.Repository
	accounts         AccountManager
	ledger           LedgerWriter
	cycle            CycleAccountant
	audit            AuditRecorder
	commissionPeriod time.Duration
	pickReturn       ReturnPicker
	logger           *slog.Logger
}

func NewEngineService(
	db TxRunner,
	planRepo plan.Repository,
	accounts AccountManager,
	ledgerWriter LedgerWriter,
	cycle CycleAccountant,
	auditRecorder AuditRecorder,
	commissionPeriodDays int,
	pickReturn ReturnPicker,
	logger *slog.Logger,
) *EngineService {
	if pickReturn == nil {
		pickReturn = UniformReturn
	}
	return &EngineService{
		db:               db,
		planRepo:         planRepo,
		accounts:         accounts,
		ledger:           ledgerWriter,
		cycle:            cycle,
		audit:            auditRecorder,
		commissionPeriod: time.Duration(commissionPeriodDays) * 24 * time.Hour,
		pickReturn:       pickReturn,
		logger:           logger,
	}
}

// commissionDue reports whether a full period has passed since the last charge,
// or since the plan started when nothing was charged yet.
func (s *EngineService) commissionDue(acc *account.Account, now time.Time) bool {
	if acc.PlanName == nil || acc.IsBlocked {
		return false
	}
	last := acc.LastCommissionChargedAt
	if last == nil {
		last = acc.PlanStartedAt
	}
	if last == nil {
		return false
	}
	return now.Sub(*last) >= s.commissionPeriod
}

// ChargePlanCommission bills the plan's monthly commission when due. The cost
// comes out of profit first and out of capital for the shortfall. A cost above
// the balance fails with ErrInsufficientFunds and leaves the account unbilled.
func (s *EngineService) ChargePlanCommission(ctx context.Context, accountID uuid.UUID, now time.Time) (Outcome, error) {
	var out Outcome
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		out = Outcome{AccountID: accountID}

		acc, err := s.accounts.Lock(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if !s.commissionDue(acc, now) {
			return nil
		}

		p, err := s.planRepo.WithTx(tx).GetByName(ctx, *acc.PlanName)
		if err != nil {
			return err
		}
		cost := p.MonthlyCommission(acc.Capital).Round(8)
		charged, err := acc.ChargeCommission(cost)
		if err != nil {
			return fmt.Errorf("failed to charge commission of %s on balance %s: %w", cost.String(), acc.Balance.String(), err)
		}
		stamp := now
		acc.LastCommissionChargedAt = &stamp

		if err := s.accounts.Save(ctx, tx, acc); err != nil {
			return err
		}
		entry := ledger.NewEntry(acc.ID, ledger.KindCommission, ledger.TagPlanCommission, charged.Neg(),
			"Monthly commission for plan "+p.Name, nil)
		if err := s.ledger.Append(ctx, tx, entry); err != nil {
			return err
		}

		out.Applied = true
		out.Amount = charged
		return nil
	})
	if err != nil {
		return Outcome{AccountID: accountID}, err
	}

	if out.Applied {
		s.logger.Info("Plan commission charged", "account_id", accountID.String(), "amount", out.Amount.String())
		s.audit.Record(ctx, audit.NewEvent(uuid.Nil, audit.SystemActor, audit.ActionCommissionCharged, audit.EntityAccount, accountID.String(), nil, out))
	}
	return out, nil
}

// AccruePassiveProfit credits one day of the passive rate to an account without
// an active plan.
func (s *EngineService) AccruePassiveProfit(ctx context.Context, accountID uuid.UUID, now time.Time) (Outcome, error) {
	return s.accrue(ctx, accountID, now, passiveAccrual{})
}

// AccruePlanProfit credits one day of plan return, drawn from the plan's range.
func (s *EngineService) AccruePlanProfit(ctx context.Context, accountID uuid.UUID, now time.Time) (Outcome, error) {
	return s.accrue(ctx, accountID, now, planAccrual{pick: s.pickReturn})
}

// accrual is one kind of daily profit credit.
type accrual interface {
	eligible(acc *account.Account, now time.Time) bool
	amount(ctx context.Context, tx pgx.Tx, planRepo plan.Repository, acc *account.Account) (decimal.Decimal, error)
	stamp(acc *account.Account, now time.Time)
	kind() (ledger.Kind, ledger.Tag, string)
}

type passiveAccrual struct{}

func (passiveAccrual) eligible(acc *account.Account, now time.Time) bool {
	return acc.PassiveRate.IsPositive() && !acc.HasActivePlan(now) && !account.SameDay(acc.LastPassiveAccrualDate, now)
}

func (passiveAccrual) amount(_ context.Context, _ pgx.Tx, _ plan.Repository, acc *account.Account) (decimal.Decimal, error) {
	return acc.Capital.Mul(acc.PassiveRate).Div(passiveDaysPerMonth).Round(8), nil
}

func (passiveAccrual) stamp(acc *account.Account, now time.Time) {
	acc.LastPassiveAccrualDate = &now
}

func (passiveAccrual) kind() (ledger.Kind, ledger.Tag, string) {
	return ledger.KindDailyProfit, ledger.TagPassiveDailyReturn, "Daily passive return"
}

type planAccrual struct {
	pick ReturnPicker
}

func (planAccrual) eligible(acc *account.Account, now time.Time) bool {
	return acc.HasActivePlan(now) && !account.SameDay(acc.LastPlanAccrualDate, now)
}

func (a planAccrual) amount(ctx context.Context, tx pgx.Tx, planRepo plan.Repository, acc *account.Account) (decimal.Decimal, error) {
	p, err := planRepo.WithTx(tx).GetByName(ctx, *acc.PlanName)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Capital.Mul(a.pick(p.MinDailyReturn, p.MaxDailyReturn)).Round(8), nil
}

func (planAccrual) stamp(acc *account.Account, now time.Time) {
	acc.LastPlanAccrualDate = &now
}

func (planAccrual) kind() (ledger.Kind, ledger.Tag, string) {
	return ledger.KindProfit, ledger.TagPlanDailyReturn, "Daily plan return"
}

// accrue credits the day's profit capped at the cycle headroom. Reaching the
// target flips cycleCompleted, after which the account accrues nothing.
func (s *EngineService) accrue(ctx context.Context, accountID uuid.UUID, now time.Time, a accrual) (Outcome, error) {
	var out Outcome
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		out = Outcome{AccountID: accountID}

		acc, err := s.accounts.Lock(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if acc.IsBlocked || acc.CycleCompleted || !acc.Capital.IsPositive() || !a.eligible(acc, now) {
			return nil
		}

		amount, err := a.amount(ctx, tx, s.planRepo, acc)
		if err != nil {
			return err
		}

		progress, err := s.cycle.Progress(ctx, tx, acc)
		if err != nil {
			return err
		}
		amount = progress.Cap(amount)
		stamp := now
		a.stamp(acc, stamp)

		if !amount.IsPositive() {
			if progress.Completed {
				acc.CycleCompleted = true
				out.Completed = true
			}
			return s.accounts.Save(ctx, tx, acc)
		}

		completes, err := progress.Admit(amount)
		if err != nil {
			return err
		}
		if err := acc.CreditProfit(amount); err != nil {
			return err
		}
		if completes {
			acc.CycleCompleted = true
		}
		if err := s.accounts.Save(ctx, tx, acc); err != nil {
			return err
		}

		kind, tag, reference := a.kind()
		if err := s.ledger.Append(ctx, tx, ledger.NewEntry(acc.ID, kind, tag, amount, reference, nil)); err != nil {
			return err
		}

		out.Applied = true
		out.Amount = amount
		out.Completed = completes
		return nil
	})
	if err != nil {
		return Outcome{AccountID: accountID}, err
	}

	if out.Applied {
		s.logger.Debug("Profit accrued", "account_id", accountID.String(), "amount", out.Amount.String(), "cycle_completed", out.Completed)
		s.audit.Record(ctx, audit.NewEvent(uuid.Nil, audit.SystemActor, audit.ActionProfitAccrued, audit.EntityAccount, accountID.String(), nil, out))
	}
	return out, nil
}
