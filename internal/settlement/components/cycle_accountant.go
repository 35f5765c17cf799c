package components

import (
	"context"
	"fmt"

	"github.com/capital-cycle-ledger/internal/domain/account"
	"github.com/capital-cycle-ledger/internal/domain/cycle"
	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/settlement/service"
	"github.com/jackc/pgx/v5"
)

// CycleAccountantImpl computes cycle progress from the ledger.
type CycleAccountantImpl struct {
	ledgerRepo ledger.Repository
}

func NewCycleAccountant(ledgerRepo ledger.Repository) service.CycleAccountant {
	return &CycleAccountantImpl{ledgerRepo: ledgerRepo}
}

func (c *CycleAccountantImpl) repo(tx pgx.Tx) ledger.Repository {
	if tx == nil {
		return c.ledgerRepo
	}
	return c.ledgerRepo.WithTx(tx)
}

func (c *CycleAccountantImpl) Progress(ctx context.Context, tx pgx.Tx, acc *account.Account) (cycle.Progress, error) {
	repo := c.repo(tx)

	cutoff, err := repo.LatestCutoff(ctx, acc.ID)
	if err != nil {
		return cycle.Progress{}, fmt.Errorf("failed to read cycle cutoff: %w", err)
	}

	profit, err := repo.SumSince(ctx, acc.ID, ledger.ProfitKinds, nil, cutoff)
	if err != nil {
		return cycle.Progress{}, fmt.Errorf("failed to sum cycle profit: %w", err)
	}

	commissions, err := repo.SumSince(ctx, acc.ID, []ledger.Kind{ledger.KindCommission}, []ledger.Tag{ledger.TagPlanCommission}, cutoff)
	if err != nil {
		return cycle.Progress{}, fmt.Errorf("failed to sum cycle commissions: %w", err)
	}

	return cycle.Compute(acc.Capital, profit, commissions.Abs(), cutoff), nil
}
