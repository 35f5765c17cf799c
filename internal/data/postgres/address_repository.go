package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const addressColumns = `id, address, status, reserved_at, reserved_for_task_id, reserved_by_account_id,
		requested_amount, used_by_account_id, received_amount, used_at, created_at`

// AddressRepository implements pool.Repository for PostgreSQL
type AddressRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewAddressRepository(logger *slog.Logger, db *persistence.PostgresDB) pool.Repository {
	return &AddressRepository{querier: db.Querier(), logger: logger}
}

func (r *AddressRepository) WithTx(tx pgx.Tx) pool.Repository {
	return &AddressRepository{querier: tx, logger: r.logger}
}

func scanAddress(row pgx.Row, a *pool.Address) error {
	return row.Scan(
		&a.ID,
		&a.Address,
		&a.Status,
		&a.ReservedAt,
		&a.ReservedForTaskID,
		&a.ReservedByAccountID,
		&a.RequestedAmount,
		&a.UsedByAccountID,
		&a.ReceivedAmount,
		&a.UsedAt,
		&a.CreatedAt,
	)
}

// Import inserts the addresses in one statement; existing ones are skipped.
func (r *AddressRepository) Import(ctx context.Context, addresses []string) (int64, error) {
	if len(addresses) == 0 {
		return 0, nil
	}
	ids := make([]uuid.UUID, len(addresses))
	for i := range addresses {
		ids[i] = uuid.New()
	}

	query := `
		INSERT INTO pool_addresses (id, address, status, created_at)
		SELECT u.id, u.address, 'AVAILABLE', NOW()
		FROM unnest($1::uuid[], $2::text[]) WITH ORDINALITY AS u(id, address, ord)
		ORDER BY u.ord
		ON CONFLICT (address) DO NOTHING
	`

	result, err := r.querier.Exec(ctx, query, ids, addresses)
	if err != nil {
		r.logger.Error("Failed to import pool addresses", "count", len(addresses), "error", err)
		return 0, fmt.Errorf("failed to import pool addresses: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *AddressRepository) getOne(ctx context.Context, query string, args ...interface{}) (*pool.Address, error) {
	var a pool.Address
	if err := scanAddress(r.querier.QueryRow(ctx, query, args...), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AddressRepository) GetByID(ctx context.Context, id uuid.UUID) (*pool.Address, error) {
	a, err := r.getOne(ctx, `SELECT `+addressColumns+` FROM pool_addresses WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pool.ErrAddressNotFound{AddressID: id}
		}
		r.logger.Error("Failed to get pool address", "address_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get pool address: %w", err)
	}
	return a, nil
}

func (r *AddressRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*pool.Address, error) {
	a, err := r.getOne(ctx, `SELECT `+addressColumns+` FROM pool_addresses WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pool.ErrAddressNotFound{AddressID: id}
		}
		r.logger.Error("Failed to lock pool address", "address_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock pool address: %w", err)
	}
	return a, nil
}

func (r *AddressRepository) LockOpenReservation(ctx context.Context, accountID uuid.UUID) (*pool.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM pool_addresses
		WHERE status = 'RESERVED' AND reserved_by_account_id = $1
		ORDER BY reserved_at
		LIMIT 1
		FOR UPDATE`

	a, err := r.getOne(ctx, query, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to lock open reservation", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to lock open reservation: %w", err)
	}
	return a, nil
}

// LockOldestAvailable picks FIFO by creation time; SKIP LOCKED keeps two
// concurrent reservations from ever receiving the same row.
func (r *AddressRepository) LockOldestAvailable(ctx context.Context) (*pool.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM pool_addresses
		WHERE status = 'AVAILABLE'
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	a, err := r.getOne(ctx, query)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrPoolExhausted
		}
		r.logger.Error("Failed to lock available address", "error", err)
		return nil, fmt.Errorf("failed to lock available address: %w", err)
	}
	return a, nil
}

func (r *AddressRepository) Update(ctx context.Context, a *pool.Address) error {
	query := `
		UPDATE pool_addresses
		SET status = $1, reserved_at = $2, reserved_for_task_id = $3, reserved_by_account_id = $4,
			requested_amount = $5, used_by_account_id = $6, received_amount = $7, used_at = $8
		WHERE id = $9
	`

	result, err := r.querier.Exec(ctx, query,
		string(a.Status),
		a.ReservedAt,
		a.ReservedForTaskID,
		a.ReservedByAccountID,
		a.RequestedAmount,
		a.UsedByAccountID,
		a.ReceivedAmount,
		a.UsedAt,
		a.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update pool address", "address_id", a.ID.String(), "status", string(a.Status), "error", err)
		return fmt.Errorf("failed to update pool address: %w", err)
	}
	if result.RowsAffected() == 0 {
		return pool.ErrAddressNotFound{AddressID: a.ID}
	}
	return nil
}

func (r *AddressRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.querier.Exec(ctx, `DELETE FROM pool_addresses WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete pool address", "address_id", id.String(), "error", err)
		return fmt.Errorf("failed to delete pool address: %w", err)
	}
	if result.RowsAffected() == 0 {
		return pool.ErrAddressNotFound{AddressID: id}
	}
	return nil
}

// RecycleExpired releases stale reservations in bulk. SKIP LOCKED leaves rows
// that a settlement is currently working on for the next pass.
func (r *AddressRepository) RecycleExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE pool_addresses p
		SET status = 'AVAILABLE', reserved_at = NULL, reserved_for_task_id = NULL,
			reserved_by_account_id = NULL, requested_amount = NULL
		WHERE p.id IN (
			SELECT a.id FROM pool_addresses a
			WHERE a.status = 'RESERVED' AND a.reserved_at < $1
			  AND NOT EXISTS (
				SELECT 1 FROM tasks t
				WHERE t.assigned_address_id = a.id AND t.status = 'COMPLETED'
			  )
			FOR UPDATE SKIP LOCKED
		)
	`

	result, err := r.querier.Exec(ctx, query, cutoff)
	if err != nil {
		r.logger.Error("Failed to recycle expired reservations", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to recycle expired reservations: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *AddressRepository) Inventory(ctx context.Context) (pool.Inventory, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'AVAILABLE'),
			COUNT(*) FILTER (WHERE status = 'RESERVED'),
			COUNT(*) FILTER (WHERE status = 'USED')
		FROM pool_addresses
	`

	var inv pool.Inventory
	if err := r.querier.QueryRow(ctx, query).Scan(&inv.Available, &inv.Reserved, &inv.Used); err != nil {
		r.logger.Error("Failed to count pool inventory", "error", err)
		return pool.Inventory{}, fmt.Errorf("failed to count pool inventory: %w", err)
	}
	return inv, nil
}
