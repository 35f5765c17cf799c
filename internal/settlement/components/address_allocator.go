package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/capital-cycle-ledger/internal/settlement/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AddressAllocatorImpl drives pool address transitions on locked rows.
type AddressAllocatorImpl struct {
	addressRepo pool.Repository
	taskRepo    task.Repository
	logger      *slog.Logger
	now         func() time.Time
}

func NewAddressAllocator(addressRepo pool.Repository, taskRepo task.Repository, logger *slog.Logger) service.AddressAllocator {
	return &AddressAllocatorImpl{
		addressRepo: addressRepo,
		taskRepo:    taskRepo,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Reserve accumulates into the account's open reservation or takes the oldest
// available address.
func (a *AddressAllocatorImpl) Reserve(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal) (*pool.Address, error) {
	if !amount.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}
	repo := a.addressRepo.WithTx(tx)

	addr, err := repo.LockOpenReservation(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if addr != nil {
		if err := addr.Accumulate(amount); err != nil {
			return nil, err
		}
		a.logger.Info("Accumulated into open reservation",
			"address_id", addr.ID.String(),
			"account_id", accountID.String(),
			"requested_amount", addr.RequestedAmount.Decimal.String(),
		)
	} else {
		addr, err = repo.LockOldestAvailable(ctx)
		if err != nil {
			if errors.Is(err, shared.ErrPoolExhausted) {
				a.logger.Warn("Address pool exhausted", "account_id", accountID.String())
			}
			return nil, err
		}
		if err := addr.Reserve(accountID, amount, a.now()); err != nil {
			return nil, err
		}
		a.logger.Info("Reserved pool address", "address_id", addr.ID.String(), "account_id", accountID.String())
	}

	if err := repo.Update(ctx, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

func (a *AddressAllocatorImpl) Attach(ctx context.Context, tx pgx.Tx, reservationID, taskID uuid.UUID) (*pool.Address, error) {
	repo := a.addressRepo.WithTx(tx)
	addr, err := repo.LockForUpdate(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := addr.AttachTo(taskID); err != nil {
		return nil, err
	}
	if err := repo.Update(ctx, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

// Consume settles the deposit task's claim on its address. A live reservation
// flips to USED. An address a sibling task already consumed only books the
// extra amount. A claim lost to recycling is left untouched so the deposit can
// still be credited.
func (a *AddressAllocatorImpl) Consume(ctx context.Context, tx pgx.Tx, t *task.Task, received decimal.Decimal) (pool.Claim, error) {
	repo := a.addressRepo.WithTx(tx)
	addressID := *t.AssignedAddressID
	addr, err := repo.LockForUpdate(ctx, addressID)
	if err != nil {
		return "", err
	}
	logger := a.logger.With("address_id", addressID.String(), "task_id", t.ID.String(), "account_id", t.AccountID.String())

	var open []uuid.UUID
	if addr.Status == pool.StatusReserved && addr.ReservedForTaskID != nil && *addr.ReservedForTaskID != t.ID {
		siblings, err := a.taskRepo.WithTx(tx).ListOpenByAddress(ctx, addressID, t.ID)
		if err != nil {
			return "", err
		}
		for _, sibling := range siblings {
			open = append(open, sibling.ID)
		}
	}

	claim := addr.ClaimOf(t.AccountID, t.ID, open)
	switch claim {
	case pool.ClaimReserved:
		if err := addr.MarkUsed(t.AccountID, received, a.now()); err != nil {
			return "", fmt.Errorf("failed to consume address %s: %w", addressID.String(), err)
		}
	case pool.ClaimShared:
		if err := addr.AddReceived(received); err != nil {
			return "", fmt.Errorf("failed to consume address %s: %w", addressID.String(), err)
		}
	default:
		logger.Warn("Address no longer held by the task, crediting deposit without consuming it", "status", string(addr.Status))
		return claim, nil
	}

	if err := repo.Update(ctx, addr); err != nil {
		return "", err
	}
	logger.Info("Pool address used", "claim", string(claim), "received", received.String())
	return claim, nil
}

func (a *AddressAllocatorImpl) Release(ctx context.Context, tx pgx.Tx, addressID uuid.UUID) (*pool.Address, bool, error) {
	repo := a.addressRepo.WithTx(tx)
	addr, err := repo.LockForUpdate(ctx, addressID)
	if err != nil {
		return nil, false, err
	}
	released, err := addr.Release()
	if err != nil || !released {
		return addr, false, err
	}
	if err := repo.Update(ctx, addr); err != nil {
		return nil, false, err
	}
	return addr, true, nil
}

// Detach releases the address when no other open task references it,
// otherwise shrinks the reservation by the rejected task's amount.
func (a *AddressAllocatorImpl) Detach(ctx context.Context, tx pgx.Tx, t *task.Task) (bool, error) {
	if t.AssignedAddressID == nil {
		return false, nil
	}
	repo := a.addressRepo.WithTx(tx)

	addr, err := repo.LockForUpdate(ctx, *t.AssignedAddressID)
	if err != nil {
		return false, err
	}
	if addr.Status != pool.StatusReserved {
		return false, nil
	}

	others, err := a.taskRepo.WithTx(tx).ListOpenByAddress(ctx, addr.ID, t.ID)
	if err != nil {
		return false, err
	}

	if len(others) == 0 {
		if _, err := addr.Release(); err != nil {
			return false, err
		}
		if err := repo.Update(ctx, addr); err != nil {
			return false, err
		}
		a.logger.Info("Released address of rejected task", "address_id", addr.ID.String(), "task_id", t.ID.String())
		return true, nil
	}

	if err := addr.Shrink(t.RequestedAmount, t.ID, &others[0].ID); err != nil {
		return false, err
	}
	if err := repo.Update(ctx, addr); err != nil {
		return false, err
	}
	a.logger.Info("Shrunk shared reservation",
		"address_id", addr.ID.String(),
		"task_id", t.ID.String(),
		"open_tasks", len(others),
		"requested_amount", addr.RequestedAmount.Decimal.String(),
	)
	return false, nil
}
