package account

import (
	"errors"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNegativeFunds is returned when a mutation would leave capital or balance below zero.
var ErrNegativeFunds = errors.New("capital and balance must not be negative")

// Account is the mutable per-user snapshot of capital, balance and plan state.
type Account struct {
	ID                      uuid.UUID       `json:"id"`
	Capital                 decimal.Decimal `json:"capital"`
	Balance                 decimal.Decimal `json:"balance"`
	PlanName                *string         `json:"plan_name,omitempty"`
	PlanStartedAt           *time.Time      `json:"plan_started_at,omitempty"`
	PlanExpiresAt           *time.Time      `json:"plan_expires_at,omitempty"`
	LastCommissionChargedAt *time.Time      `json:"last_commission_charged_at,omitempty"`
	CycleCompleted          bool            `json:"cycle_completed"`
	PassiveRate             decimal.Decimal `json:"passive_rate"` // Monthly
	LastPassiveAccrualDate  *time.Time      `json:"last_passive_accrual_date,omitempty"`
	LastPlanAccrualDate     *time.Time      `json:"last_plan_accrual_date,omitempty"`
	IsBlocked               bool            `json:"is_blocked"`
	BlockReason             string          `json:"block_reason,omitempty"`
	ReferrerID              *uuid.UUID      `json:"referrer_id,omitempty"`
	Version                 int             `json:"version"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// NewAccount creates an empty account, optionally referred by another account.
func NewAccount(referrerID *uuid.UUID) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:         uuid.New(),
		Capital:    decimal.Zero,
		Balance:    decimal.Zero,
		ReferrerID: referrerID,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Profit is the part of the balance above capital, never negative.
func (a *Account) Profit() decimal.Decimal {
	p := a.Balance.Sub(a.Capital)
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// HasActivePlan reports whether a plan is attached and not expired at now.
func (a *Account) HasActivePlan(now time.Time) bool {
	if a.PlanName == nil || *a.PlanName == "" {
		return false
	}
	return a.PlanExpiresAt == nil || now.Before(*a.PlanExpiresAt)
}

// Deposit adds amount to both capital and balance.
func (a *Account) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.ErrInvalidAmount
	}
	a.Capital = a.Capital.Add(amount)
	a.Balance = a.Balance.Add(amount)
	a.touch()
	return nil
}

// CreditProfit adds amount to balance only.
func (a *Account) CreditProfit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.ErrInvalidAmount
	}
	a.Balance = a.Balance.Add(amount)
	a.touch()
	return nil
}

// CreditReferral pays a referral commission into the balance. An account
// holding no capital also receives it as capital.
func (a *Account) CreditReferral(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.ErrInvalidAmount
	}
	if a.Capital.IsZero() {
		a.Capital = amount
	}
	a.Balance = a.Balance.Add(amount)
	a.touch()
	return nil
}

// Withdraw subtracts amount from balance only. Capital stays as the cycle
// principal, so a withdrawal reaching into it leaves balance below capital and
// CheckInvariants reports it.
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.ErrInvalidAmount
	}
	if amount.GreaterThan(a.Balance) {
		return shared.ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	a.touch()
	return nil
}

// ChargeCommission draws cost from profit first and takes any shortfall out
// of capital, keeping capital and balance equal once profit is exhausted.
// It returns the amount actually charged.
func (a *Account) ChargeCommission(cost decimal.Decimal) (decimal.Decimal, error) {
	if cost.IsNegative() {
		return decimal.Zero, shared.ErrInvalidAmount
	}
	if cost.GreaterThan(a.Balance) {
		return decimal.Zero, shared.ErrInsufficientFunds
	}
	profit := a.Profit()
	if cost.LessThanOrEqual(profit) {
		a.Balance = a.Balance.Sub(cost)
	} else {
		shortfall := cost.Sub(profit)
		a.Capital = a.Capital.Sub(shortfall)
		a.Balance = a.Capital
	}
	a.touch()
	return cost, nil
}

// ResetCycle closes a completed cycle and returns the account to the
// unconfigured state: capital, balance, plan and plan dates are cleared. The
// passive rate survives since it is only assigned on the first deposit. It
// returns the balance that was cleared.
func (a *Account) ResetCycle() decimal.Decimal {
	cleared := a.Balance
	a.Capital = decimal.Zero
	a.Balance = decimal.Zero
	a.PlanName = nil
	a.PlanStartedAt = nil
	a.PlanExpiresAt = nil
	a.LastCommissionChargedAt = nil
	a.LastPlanAccrualDate = nil
	a.CycleCompleted = false
	a.touch()
	return cleared
}

// Liquidate zeroes capital and balance, forfeiting profit, and blocks the account.
func (a *Account) Liquidate(reason string) {
	a.Capital = decimal.Zero
	a.Balance = decimal.Zero
	a.IsBlocked = true
	a.BlockReason = reason
	a.touch()
}

// Reinvest folds profit into capital and opens a new cycle.
func (a *Account) Reinvest() decimal.Decimal {
	profit := a.Profit()
	a.Capital = a.Balance
	a.CycleCompleted = false
	a.touch()
	return profit
}

// CheckInvariants verifies the hard invariants and reports whether the
// soft balance >= capital expectation holds.
func (a *Account) CheckInvariants() (balanceCoversCapital bool, err error) {
	if a.Capital.IsNegative() || a.Balance.IsNegative() {
		return false, ErrNegativeFunds
	}
	return a.Balance.GreaterThanOrEqual(a.Capital), nil
}

func (a *Account) touch() {
	a.UpdatedAt = time.Now().UTC()
}

// SameDay reports whether t falls on the same UTC calendar day as day.
func SameDay(t *time.Time, day time.Time) bool {
	if t == nil {
		return false
	}
	y1, m1, d1 := t.UTC().Date()
	y2, m2, d2 := day.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
