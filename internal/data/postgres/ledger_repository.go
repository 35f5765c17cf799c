package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepository is the append-only ledger_entries store.
type LedgerRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{querier: db.Querier(), logger: logger}
}

func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &LedgerRepository{querier: tx, logger: r.logger}
}

func (r *LedgerRepository) Create(ctx context.Context, e *ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (id, account_id, kind, tag, amount, reference, task_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		e.ID,
		e.AccountID,
		string(e.Kind),
		string(e.Tag),
		e.Amount,
		e.Reference,
		e.TaskID,
		e.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create ledger entry",
			"entry_id", e.ID.String(),
			"account_id", e.AccountID.String(),
			"kind", string(e.Kind),
			"error", err)
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepository) LatestCutoff(ctx context.Context, accountID uuid.UUID) (*time.Time, error) {
	query := `
		SELECT MAX(created_at) FROM ledger_entries
		WHERE account_id = $1
		  AND (kind = 'REINVEST' OR (kind = 'WITHDRAWAL' AND tag = ANY($2)))
	`

	var cutoff *time.Time
	err := r.querier.QueryRow(ctx, query, accountID, tagStrings(ledger.CutoffTags)).Scan(&cutoff)
	if err != nil {
		r.logger.Error("Failed to query cycle cutoff", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to query cycle cutoff: %w", err)
	}
	return cutoff, nil
}

func (r *LedgerRepository) SumSince(ctx context.Context, accountID uuid.UUID, kinds []ledger.Kind, tags []ledger.Tag, cutoff *time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE account_id = $1
		  AND kind = ANY($2)
		  AND (cardinality($3::text[]) = 0 OR tag = ANY($3))
		  AND ($4::timestamptz IS NULL OR created_at > $4)
	`

	ks := make([]string, len(kinds))
	for i, k := range kinds {
		ks[i] = string(k)
	}

	var sum decimal.Decimal
	err := r.querier.QueryRow(ctx, query, accountID, ks, tagStrings(tags), cutoff).Scan(&sum)
	if err != nil {
		r.logger.Error("Failed to sum ledger entries", "account_id", accountID.String(), "kinds", ks, "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	return sum, nil
}

func (r *LedgerRepository) CountByKind(ctx context.Context, accountID uuid.UUID, kind ledger.Kind) (int64, error) {
	query := `SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1 AND kind = $2`

	var n int64
	if err := r.querier.QueryRow(ctx, query, accountID, string(kind)).Scan(&n); err != nil {
		r.logger.Error("Failed to count ledger entries", "account_id", accountID.String(), "error", err)
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return n, nil
}

func (r *LedgerRepository) HasTag(ctx context.Context, accountID uuid.UUID, tag ledger.Tag) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE account_id = $1 AND tag = $2)`

	var exists bool
	if err := r.querier.QueryRow(ctx, query, accountID, string(tag)).Scan(&exists); err != nil {
		r.logger.Error("Failed to check ledger tag", "account_id", accountID.String(), "tag", string(tag), "error", err)
		return false, fmt.Errorf("failed to check ledger tag: %w", err)
	}
	return exists, nil
}

// ListByAccount returns entries newest first.
func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	query := `
		SELECT id, account_id, kind, tag, amount, reference, task_id, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Tag, &e.Amount, &e.Reference, &e.TaskID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}

func tagStrings(tags []ledger.Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}
