package ledger

import (
	"context"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository is the append-only ledger store. Every query honours WithTx so
// cycle accounting can run inside a settlement transaction.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error

	// LatestCutoff returns the createdAt of the newest REINVEST entry or
	// WITHDRAWAL tagged CYCLE_RESET / EARLY_LIQUIDATION, nil if none.
	LatestCutoff(ctx context.Context, accountID uuid.UUID) (*time.Time, error)

	// SumSince sums amounts of the given kinds created strictly after cutoff.
	// A nil cutoff means all time; empty tags means any tag.
	SumSince(ctx context.Context, accountID uuid.UUID, kinds []Kind, tags []Tag, cutoff *time.Time) (decimal.Decimal, error)

	CountByKind(ctx context.Context, accountID uuid.UUID, kind Kind) (int64, error)
	HasTag(ctx context.Context, accountID uuid.UUID, tag Tag) (bool, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Entry, error)

	WithTx(tx pgx.Tx) Repository
}

// FeedRepository is the activity feed read model fed by the outbox poller.
type FeedRepository interface {
	Upsert(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Entry, error)
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// ErrEntryNotFound indicates missing ledger entry
type ErrEntryNotFound struct {
	EntryID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found: " + e.EntryID.String()
}

// Is implements the errors.Is interface for ErrEntryNotFound
func (e ErrEntryNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	// A nil target id matches any ErrEntryNotFound
	if t.EntryID == uuid.Nil {
		return true
	}
	return e.EntryID == t.EntryID
}
