package plan

import (
	"context"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Plan is read-only investment plan reference data.
type Plan struct {
	Name                   string          `json:"name"`
	MinCapital             decimal.Decimal `json:"min_capital"`
	MinDailyReturn         decimal.Decimal `json:"min_daily_return"` // Fraction per day
	MaxDailyReturn         decimal.Decimal `json:"max_daily_return"`
	MonthlyCommissionPct   decimal.Decimal `json:"monthly_commission_pct"` // 5 means 5%
	ReferralCommissionRate decimal.Decimal `json:"referral_commission_rate"`
	DurationDays           int             `json:"duration_days"`
}

var hundred = decimal.NewFromInt(100)

// MonthlyCommission is the plan cost for the given capital.
func (p *Plan) MonthlyCommission(capital decimal.Decimal) decimal.Decimal {
	return capital.Mul(p.MonthlyCommissionPct).Div(hundred)
}

// Repository looks plans up by name.
type Repository interface {
	GetByName(ctx context.Context, name string) (*Plan, error)
	List(ctx context.Context) ([]*Plan, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrPlanNotFound indicates missing plan
type ErrPlanNotFound struct {
	Name string
}

func (e ErrPlanNotFound) Error() string {
	return "plan not found: " + e.Name
}

func (e ErrPlanNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	t, ok := target.(ErrPlanNotFound)
	return ok && (t.Name == "" || t.Name == e.Name)
}
