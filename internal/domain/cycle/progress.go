// Package cycle computes progress toward the 200% profit target of a capital cycle.
package cycle

import (
	"time"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// TargetMultiplier is the profit target as a multiple of capital plus commissions paid.
var TargetMultiplier = decimal.NewFromInt(2)

var hundred = decimal.NewFromInt(100)

// Progress is a snapshot of one account's current cycle.
type Progress struct {
	Cutoff       *time.Time      `json:"cutoff,omitempty"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
	Commissions  decimal.Decimal `json:"commissions"`
	TargetProfit decimal.Decimal `json:"target_profit"`
	ProgressPct  decimal.Decimal `json:"progress_pct"`
	Remaining    decimal.Decimal `json:"remaining"`
	Completed    bool            `json:"completed"`
}

// Compute derives progress from capital, profit since the cutoff and plan
// commissions since the cutoff (as a positive amount).
func Compute(capital, profit, commissions decimal.Decimal, cutoff *time.Time) Progress {
	target := capital.Add(commissions).Mul(TargetMultiplier)
	p := Progress{
		Cutoff:       cutoff,
		TotalProfit:  profit,
		Commissions:  commissions,
		TargetProfit: target,
		ProgressPct:  decimal.Zero,
		Remaining:    decimal.Zero,
	}
	if target.IsPositive() {
		p.ProgressPct = profit.Div(target).Mul(hundred).Round(2)
		p.Completed = profit.GreaterThanOrEqual(target)
		if !p.Completed {
			p.Remaining = target.Sub(profit)
		}
	}
	return p
}

// Admit checks a profit credit against the target. It reports whether the
// credit reaches the target, or a CycleCapError carrying the headroom when it
// would overshoot.
func (p Progress) Admit(amount decimal.Decimal) (completes bool, err error) {
	after := p.TotalProfit.Add(amount)
	if after.GreaterThan(p.TargetProfit) {
		return false, shared.CycleCapError{Remaining: p.Remaining}
	}
	return p.TargetProfit.IsPositive() && after.Equal(p.TargetProfit), nil
}

// Cap trims an accrual to the remaining headroom.
func (p Progress) Cap(amount decimal.Decimal) decimal.Decimal {
	if amount.GreaterThan(p.Remaining) {
		return p.Remaining
	}
	return amount
}
