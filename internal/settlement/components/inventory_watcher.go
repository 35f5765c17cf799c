package components

import (
	"context"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/platform/metrics"
	"github.com/capital-cycle-ledger/internal/settlement/service"
)

// InventoryWatcherImpl refreshes the pool gauges and alerts below the threshold.
type InventoryWatcherImpl struct {
	addressRepo pool.Repository
	notifier    pool.Notifier
	threshold   int
	logger      *slog.Logger
}

func NewInventoryWatcher(addressRepo pool.Repository, notifier pool.Notifier, threshold int, logger *slog.Logger) service.InventoryWatcher {
	return &InventoryWatcherImpl{
		addressRepo: addressRepo,
		notifier:    notifier,
		threshold:   threshold,
		logger:      logger,
	}
}

func (w *InventoryWatcherImpl) Check(ctx context.Context) {
	inv, err := w.addressRepo.Inventory(ctx)
	if err != nil {
		w.logger.Warn("Failed to read pool inventory", "error", err)
		return
	}
	metrics.RecordInventory(inv.Available, inv.Reserved, inv.Used)

	if w.notifier == nil || inv.Available >= int64(w.threshold) {
		return
	}
	if err := w.notifier.NotifyLowInventory(ctx, inv.Available, w.threshold); err != nil {
		w.logger.Warn("Low inventory notification failed", "available", inv.Available, "error", err)
	}
}
