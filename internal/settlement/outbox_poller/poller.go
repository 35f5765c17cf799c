package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/capital-cycle-ledger/internal/config"
	"github.com/capital-cycle-ledger/internal/domain/outbox"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/platform/metrics"
)

// Poller relays pending outbox messages
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        LedgerPublisher
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	publisher LedgerPublisher,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start polls until ctx is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Outbox Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			if _, err := p.RelayPending(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

// RelayPending relays one batch and returns how many messages went through.
func (p *Poller) RelayPending(ctx context.Context) (int, error) {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	if len(messages) == 0 {
		return 0, nil
	}

	p.logger.Debug("Fetched pending outbox messages", "count", len(messages))

	relayed := 0
	for _, msg := range messages {
		if msg.Status.Final() {
			continue
		}
		err := p.publisher.Publish(ctx, msg)
		if err == nil {
			relayed++
			metrics.OutboxPublished.WithLabelValues("processed").Inc()
			continue
		}
		if errors.Is(err, errUndecodable) {
			metrics.OutboxPublished.WithLabelValues("failed").Inc()
			continue
		}

		p.logger.Warn("Failed to relay outbox message",
			"outbox_id", msg.ID, "entry_id", msg.EntryID.String(), "current_attempts", msg.Attempts, "error", err,
		)
		metrics.OutboxPublished.WithLabelValues("retry").Inc()

		if errInc := p.outboxRepo.IncrementAttempts(ctx, msg.ID); errInc != nil {
			p.logger.Error("Failed to increment attempts for outbox message", "outbox_id", msg.ID, "error", errInc)
			continue
		}
		msg.IncrementAttempts()

		if msg.Exhausted(p.maxRetryAttempts) {
			p.logger.Warn("Max retry attempts reached for outbox message, marking as FAILED_TO_PUBLISH",
				"outbox_id", msg.ID, "entry_id", msg.EntryID.String(), "attempts_made", msg.Attempts,
			)
			if errUpdate := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); errUpdate != nil {
				p.logger.Error("Failed to mark outbox message FAILED_TO_PUBLISH", "outbox_id", msg.ID, "error", errUpdate)
				continue
			}
			msg.MarkAsFailed()
			metrics.OutboxPublished.WithLabelValues("failed").Inc()
		}
	}
	return relayed, nil
}
