package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/outbox"
	"github.com/capital-cycle-ledger/internal/settlement/service"
	"github.com/jackc/pgx/v5"
)

// LedgerWriterImpl writes each entry and its outbox message in the caller's transaction.
type LedgerWriterImpl struct {
	ledgerRepo ledger.Repository
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

func NewLedgerWriter(ledgerRepo ledger.Repository, outboxRepo outbox.Repository, logger *slog.Logger) service.LedgerWriter {
	return &LedgerWriterImpl{
		ledgerRepo: ledgerRepo,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

func (w *LedgerWriterImpl) Append(ctx context.Context, tx pgx.Tx, entries ...*ledger.Entry) error {
	ledgerTx := w.ledgerRepo.WithTx(tx)
	outboxTx := w.outboxRepo.WithTx(tx)

	for _, entry := range entries {
		if err := ledgerTx.Create(ctx, entry); err != nil {
			return fmt.Errorf("failed to append %s entry for account %s: %w", entry.Kind, entry.AccountID.String(), err)
		}

		msg, err := outbox.NewMessage(entry)
		if err != nil {
			w.logger.Error("Failed to build outbox message", "entry_id", entry.ID.String(), "error", err)
			return fmt.Errorf("failed to build outbox message for entry %s: %w", entry.ID.String(), err)
		}
		if err := outboxTx.Create(ctx, msg); err != nil {
			return fmt.Errorf("failed to enqueue entry %s: %w", entry.ID.String(), err)
		}

		w.logger.Debug("Ledger entry appended",
			"entry_id", entry.ID.String(),
			"account_id", entry.AccountID.String(),
			"kind", string(entry.Kind),
			"tag", string(entry.Tag),
			"amount", entry.Amount.String(),
		)
	}
	return nil
}
