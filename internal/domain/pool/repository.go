package pool

import (
	"context"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines address pool persistence operations
type Repository interface {
	// Import inserts new AVAILABLE addresses, skipping duplicates.
	Import(ctx context.Context, addresses []string) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Address, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Address, error)

	// LockOpenReservation returns the account's RESERVED address, nil when none.
	LockOpenReservation(ctx context.Context, accountID uuid.UUID) (*Address, error)
	// LockOldestAvailable locks the oldest AVAILABLE address, skipping rows
	// other transactions hold. Returns ErrPoolExhausted when none is left.
	LockOldestAvailable(ctx context.Context) (*Address, error)

	Update(ctx context.Context, address *Address) error
	Delete(ctx context.Context, id uuid.UUID) error

	// RecycleExpired releases RESERVED addresses reserved before cutoff that no
	// COMPLETED task references.
	RecycleExpired(ctx context.Context, cutoff time.Time) (int64, error)
	Inventory(ctx context.Context) (Inventory, error)

	WithTx(tx pgx.Tx) Repository
}

// Notifier receives low-inventory alerts. Calls are fire-and-forget.
type Notifier interface {
	NotifyLowInventory(ctx context.Context, available int64, threshold int) error
}

// ErrAddressNotFound indicates missing pool address
type ErrAddressNotFound struct {
	AddressID uuid.UUID
}

func (e ErrAddressNotFound) Error() string {
	return "pool address not found: " + e.AddressID.String()
}

func (e ErrAddressNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	t, ok := target.(ErrAddressNotFound)
	return ok && (t.AddressID == uuid.Nil || t.AddressID == e.AddressID)
}
