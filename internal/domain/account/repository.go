package account

import (
	"context"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines account persistence operations
type Repository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	Update(ctx context.Context, account *Account) error

	// LockForUpdate acquires a row lock for the remainder of the transaction
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)

	// HasDeposits reports whether any DEPOSIT entry exists for the account
	HasDeposits(ctx context.Context, id uuid.UUID) (bool, error)

	// ListCommissionCandidates returns ids of accounts with a plan, after the given id
	ListCommissionCandidates(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	// ListAccrualCandidates returns ids of unblocked accounts with capital, after the given id
	ListAccrualCandidates(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrAccountNotFound indicates missing account
type ErrAccountNotFound struct {
	AccountID uuid.UUID
}

func (e ErrAccountNotFound) Error() string {
	return "account not found: " + e.AccountID.String()
}

// Is matches shared.ErrNotFound and any ErrAccountNotFound with a nil or equal id.
func (e ErrAccountNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	t, ok := target.(ErrAccountNotFound)
	if !ok {
		return false
	}
	return t.AccountID == uuid.Nil || t.AccountID == e.AccountID
}

// ErrConcurrentModification indicates the version check on update failed
type ErrConcurrentModification struct {
	AccountID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for account: " + e.AccountID.String()
}

// ErrAccountBlocked is returned when a blocked account attempts a new request.
type ErrAccountBlocked struct {
	AccountID uuid.UUID
	Reason    string
}

func (e ErrAccountBlocked) Error() string {
	return "account " + e.AccountID.String() + " is blocked: " + e.Reason
}

func (e ErrAccountBlocked) Is(target error) bool {
	return target == shared.ErrForbidden
}
