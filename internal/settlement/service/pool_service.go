package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/audit"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/capital-cycle-ledger/internal/platform/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ForcedRejectionReason is written on open tasks whose address an admin removes.
const ForcedRejectionReason = "deposit address withdrawn by administrator"

// PoolService administers the deposit address inventory.
type PoolService struct {
	db          TxRunner
	addressRepo pool.Repository
	taskRepo    task.Repository
	addresses   AddressAllocator
	audit       AuditRecorder
	inventory   InventoryWatcher
	logger      *slog.Logger
}

func NewPoolService(
	db TxRunner,
	addressRepo pool.Repository,
	taskRepo task.Repository,
	addresses AddressAllocator,
	auditRecorder AuditRecorder,
	inventory InventoryWatcher,
	logger *slog.Logger,
) *PoolService {
	return &PoolService{
		db:          db,
		addressRepo: addressRepo,
		taskRepo:    taskRepo,
		addresses:   addresses,
		audit:       auditRecorder,
		inventory:   inventory,
		logger:      logger,
	}
}

// Import adds new AVAILABLE addresses. Blank lines and duplicates are skipped.
func (s *PoolService) Import(ctx context.Context, actor uuid.UUID, addresses []string) (int64, error) {
	cleaned := make([]string, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		cleaned = append(cleaned, a)
	}

	inserted, err := s.addressRepo.Import(ctx, cleaned)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Imported pool addresses", "submitted", len(addresses), "inserted", inserted)
	s.audit.Record(ctx, audit.NewEvent(actor, "admin", audit.ActionAddressesImported, "pool", "addresses", nil,
		map[string]int64{"submitted": int64(len(addresses)), "inserted": inserted}))
	s.inventory.Check(ctx)
	return inserted, nil
}

func (s *PoolService) Inventory(ctx context.Context) (pool.Inventory, error) {
	inv, err := s.addressRepo.Inventory(ctx)
	if err != nil {
		return pool.Inventory{}, err
	}
	metrics.RecordInventory(inv.Available, inv.Reserved, inv.Used)
	return inv, nil
}

// Release returns a reserved address to the pool. Releasing an available address is a no-op.
func (s *PoolService) Release(ctx context.Context, actor uuid.UUID, addressID uuid.UUID) (*pool.Address, error) {
	var (
		addr     *pool.Address
		released bool
	)
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		addr, released, err = s.addresses.Release(ctx, tx, addressID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if released {
		s.audit.Record(ctx, audit.NewEvent(actor, "admin", audit.ActionAddressReleased, audit.EntityAddress, addressID.String(), nil, addr))
		s.inventory.Check(ctx)
	}
	return addr, nil
}

// DeleteOrRelease force-rejects every open task that references the address,
// then deletes the address (remove) or returns it to the pool.
func (s *PoolService) DeleteOrRelease(ctx context.Context, actor uuid.UUID, addressID uuid.UUID, remove bool) ([]*task.Task, error) {
	logger := s.logger.With("address_id", addressID.String(), "remove", remove)

	var (
		rejected []*task.Task
		events   []audit.Event
	)
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		rejected, events = nil, nil
		addresses := s.addressRepo.WithTx(tx)
		tasks := s.taskRepo.WithTx(tx)

		current, err := addresses.GetByID(ctx, addressID)
		if err != nil {
			return err
		}
		if current.Status == pool.StatusUsed {
			return invalidAddressState(current, "remove")
		}

		open, err := tasks.ListOpenByAddress(ctx, addressID, uuid.Nil)
		if err != nil {
			return err
		}
		for _, o := range open {
			t, err := tasks.LockForUpdate(ctx, o.ID)
			if err != nil {
				return err
			}
			if !t.Status.IsOpen() {
				continue
			}
			before := *t
			t.Reject(actor, ForcedRejectionReason)
			if err := tasks.Update(ctx, t); err != nil {
				return err
			}
			rejected = append(rejected, t)
			events = append(events, audit.NewEvent(actor, "admin", audit.ActionTaskRejected, audit.EntityTask, t.ID.String(), &before, t))
		}

		addr, err := addresses.LockForUpdate(ctx, addressID)
		if err != nil {
			return err
		}
		if addr.Status == pool.StatusUsed {
			return invalidAddressState(addr, "remove")
		}

		if remove {
			if err := addresses.Delete(ctx, addressID); err != nil {
				return err
			}
			events = append(events, audit.NewEvent(actor, "admin", audit.ActionAddressDeleted, audit.EntityAddress, addressID.String(), addr, nil))
			return nil
		}

		before := *addr
		released, err := addr.Release()
		if err != nil {
			return err
		}
		if released {
			if err := addresses.Update(ctx, addr); err != nil {
				return err
			}
			events = append(events, audit.NewEvent(actor, "admin", audit.ActionAddressReleased, audit.EntityAddress, addressID.String(), &before, addr))
		}
		return nil
	})
	if err != nil {
		logger.Warn("Failed to withdraw pool address", "error", err)
		return nil, err
	}

	logger.Info("Pool address withdrawn", "rejected_tasks", len(rejected))
	s.audit.Record(ctx, events...)
	s.inventory.Check(ctx)
	return rejected, nil
}

// RecycleExpired releases reservations older than timeoutHours that never led
// to a completed deposit.
func (s *PoolService) RecycleExpired(ctx context.Context, timeoutHours int) (int64, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(timeoutHours) * time.Hour)

	count, err := s.addressRepo.RecycleExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Recycled expired reservations", "count", count, "cutoff", cutoff)
	if count > 0 {
		s.audit.Record(ctx, audit.NewEvent(uuid.Nil, audit.SystemActor, audit.ActionAddressesRecycled, "pool", "addresses", nil,
			map[string]any{"count": count, "cutoff": cutoff}))
	}
	s.inventory.Check(ctx)
	return count, nil
}

func invalidAddressState(a *pool.Address, op string) error {
	return shared.InvalidStateError{Entity: "address", Status: string(a.Status), Op: op}
}
