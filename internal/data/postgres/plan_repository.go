package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/plan"
	"github.com/capital-cycle-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

const planColumns = `name, min_capital, min_daily_return, max_daily_return, monthly_commission_pct,
		referral_commission_rate, duration_days`

// PlanRepository implements plan.Repository for PostgreSQL
type PlanRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewPlanRepository(logger *slog.Logger, db *persistence.PostgresDB) plan.Repository {
	return &PlanRepository{querier: db.Querier(), logger: logger}
}

func (r *PlanRepository) WithTx(tx pgx.Tx) plan.Repository {
	return &PlanRepository{querier: tx, logger: r.logger}
}

func scanPlan(row pgx.Row, p *plan.Plan) error {
	return row.Scan(
		&p.Name,
		&p.MinCapital,
		&p.MinDailyReturn,
		&p.MaxDailyReturn,
		&p.MonthlyCommissionPct,
		&p.ReferralCommissionRate,
		&p.DurationDays,
	)
}

func (r *PlanRepository) GetByName(ctx context.Context, name string) (*plan.Plan, error) {
	var p plan.Plan
	err := scanPlan(r.querier.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE name = $1`, name), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, plan.ErrPlanNotFound{Name: name}
		}
		r.logger.Error("Failed to get plan", "plan", name, "error", err)
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &p, nil
}

func (r *PlanRepository) List(ctx context.Context) ([]*plan.Plan, error) {
	rows, err := r.querier.Query(ctx, `SELECT `+planColumns+` FROM plans ORDER BY min_capital, name`)
	if err != nil {
		r.logger.Error("Failed to list plans", "error", err)
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*plan.Plan
	for rows.Next() {
		var p plan.Plan
		if err := scanPlan(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}
	return plans, nil
}
