// Package postgres provides PostgreSQL implementations of the domain repositories.
// Every repository can be rebound to a transaction with WithTx so a settlement
// commits account, ledger, task and pool changes together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/account"
	"github.com/capital-cycle-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, capital, balance, plan_name, plan_started_at, plan_expires_at,
		last_commission_charged_at, cycle_completed, passive_rate, last_passive_accrual_date,
		last_plan_accrual_date, is_blocked, block_reason, referrer_id, version, created_at, updated_at`

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewAccountRepository creates a new PostgreSQL account repository.
func NewAccountRepository(logger *slog.Logger, db *persistence.PostgresDB) account.Repository {
	return &AccountRepository{
		querier: db.Querier(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx.
func (r *AccountRepository) WithTx(tx pgx.Tx) account.Repository {
	return &AccountRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanAccount(row pgx.Row, acc *account.Account) error {
	return row.Scan(
		&acc.ID,
		&acc.Capital,
		&acc.Balance,
		&acc.PlanName,
		&acc.PlanStartedAt,
		&acc.PlanExpiresAt,
		&acc.LastCommissionChargedAt,
		&acc.CycleCompleted,
		&acc.PassiveRate,
		&acc.LastPassiveAccrualDate,
		&acc.LastPlanAccrualDate,
		&acc.IsBlocked,
		&acc.BlockReason,
		&acc.ReferrerID,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, acc *account.Account) error {
	query := `
		INSERT INTO accounts (id, capital, balance, passive_rate, referrer_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		acc.ID,
		acc.Capital,
		acc.Balance,
		acc.PassiveRate,
		acc.ReferrerID,
		acc.Version,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create account", "account_id", acc.ID.String(), "error", err)
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	var acc account.Account
	if err := scanAccount(r.querier.QueryRow(ctx, query, id), &acc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to get account", "account_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &acc, nil
}

// LockForUpdate locks the account row for the rest of the transaction.
func (r *AccountRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	var acc account.Account
	if err := scanAccount(r.querier.QueryRow(ctx, query, id), &acc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to lock account for update", "account_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock account for update: %w", err)
	}

	return &acc, nil
}

// Update writes the full snapshot, bumping the version. The caller must hold
// the row lock; the version predicate catches writers that skipped it.
func (r *AccountRepository) Update(ctx context.Context, acc *account.Account) error {
	if _, err := acc.CheckInvariants(); err != nil {
		return fmt.Errorf("refusing to update account %s: %w", acc.ID, err)
	}

	query := `
		UPDATE accounts
		SET capital = $1, balance = $2, plan_name = $3, plan_started_at = $4, plan_expires_at = $5,
			last_commission_charged_at = $6, cycle_completed = $7, passive_rate = $8,
			last_passive_accrual_date = $9, last_plan_accrual_date = $10, is_blocked = $11,
			block_reason = $12, version = version + 1, updated_at = $13
		WHERE id = $14 AND version = $15
	`

	result, err := r.querier.Exec(ctx, query,
		acc.Capital,
		acc.Balance,
		acc.PlanName,
		acc.PlanStartedAt,
		acc.PlanExpiresAt,
		acc.LastCommissionChargedAt,
		acc.CycleCompleted,
		acc.PassiveRate,
		acc.LastPassiveAccrualDate,
		acc.LastPlanAccrualDate,
		acc.IsBlocked,
		acc.BlockReason,
		acc.UpdatedAt,
		acc.ID,
		acc.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update account", "account_id", acc.ID.String(), "error", err)
		return fmt.Errorf("failed to update account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return account.ErrConcurrentModification{AccountID: acc.ID}
	}
	acc.Version++

	return nil
}

// HasDeposits reports whether the account has ever had a deposit settled.
func (r *AccountRepository) HasDeposits(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE account_id = $1 AND kind = 'DEPOSIT')`

	var exists bool
	if err := r.querier.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		r.logger.Error("Failed to check deposits", "account_id", id.String(), "error", err)
		return false, fmt.Errorf("failed to check deposits: %w", err)
	}
	return exists, nil
}

// ListCommissionCandidates pages through accounts that hold a plan.
func (r *AccountRepository) ListCommissionCandidates(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM accounts
		WHERE plan_name IS NOT NULL AND NOT is_blocked AND capital > 0 AND id > $1
		ORDER BY id
		LIMIT $2
	`
	return r.listIDs(ctx, "commission", query, after, limit)
}

// ListAccrualCandidates pages through unblocked accounts holding capital.
func (r *AccountRepository) ListAccrualCandidates(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM accounts
		WHERE NOT is_blocked AND NOT cycle_completed AND capital > 0 AND id > $1
		ORDER BY id
		LIMIT $2
	`
	return r.listIDs(ctx, "accrual", query, after, limit)
}

func (r *AccountRepository) listIDs(ctx context.Context, pass, query string, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := r.querier.Query(ctx, query, after, limit)
	if err != nil {
		r.logger.Error("Failed to list candidate accounts", "pass", pass, "error", err)
		return nil, fmt.Errorf("failed to list %s candidates: %w", pass, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s candidate: %w", pass, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s candidates: %w", pass, err)
	}
	return ids, nil
}
