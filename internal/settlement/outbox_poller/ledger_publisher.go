package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/outbox"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/platform/messaging/producers"
)

// errUndecodable marks a message whose payload can never be relayed.
var errUndecodable = errors.New("undecodable outbox payload")

// LedgerPublisher relays one outbox message to the read side
type LedgerPublisher interface {
	Publish(ctx context.Context, message *outbox.Message) error
}

// LedgerPublisherImpl writes the activity feed and the ledger events topic.
// Both targets are idempotent on the entry id, so a retried message is harmless.
type LedgerPublisherImpl struct {
	outboxRepo outbox.Repository
	feedRepo   ledger.FeedRepository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

// NewLedgerPublisher creates a publisher. producer may be nil to feed Mongo only.
func NewLedgerPublisher(
	outboxRepo outbox.Repository,
	feedRepo ledger.FeedRepository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) LedgerPublisher {
	return &LedgerPublisherImpl{
		outboxRepo: outboxRepo,
		feedRepo:   feedRepo,
		producer:   producer,
		logger:     logger,
	}
}

func (p *LedgerPublisherImpl) Publish(ctx context.Context, message *outbox.Message) error {
	logger := p.logger.With("outbox_id", message.ID, "entry_id", message.EntryID.String())

	entry, err := message.LedgerEntry()
	if err != nil {
		logger.Error("Failed to unmarshal ledger entry from outbox payload", "error", err)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			logger.Error("Also failed to mark undecodable outbox message", "update_error", updateErr)
		} else {
			message.MarkAsFailed()
		}
		return fmt.Errorf("%w %d: %v", errUndecodable, message.ID, err)
	}

	if err := p.feedRepo.Upsert(ctx, entry); err != nil {
		logger.Error("Failed to write ledger entry to activity feed", "error", err)
		return fmt.Errorf("failed to write feed entry %s: %w", entry.ID, err)
	}

	if p.producer != nil {
		if err := p.producer.Publish(ctx, entry.AccountID.String(), entry); err != nil {
			logger.Error("Failed to publish ledger event", "error", err)
			return fmt.Errorf("failed to publish ledger event %s: %w", entry.ID, err)
		}
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to mark outbox message as PROCESSED", "error", err)
		return fmt.Errorf("entry %s relayed, but failed to mark outbox %d as PROCESSED: %w", entry.ID, message.ID, err)
	}
	message.MarkAsProcessed()

	logger.Debug("Outbox message relayed", "account_id", entry.AccountID.String(), "kind", entry.Kind)
	return nil
}
