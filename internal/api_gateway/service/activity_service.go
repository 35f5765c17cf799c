package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/audit"
	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

type ActivityServiceImpl struct {
	feed   ledger.FeedRepository
	trail  audit.Reader
	logger *slog.Logger
}

func NewActivityService(logger *slog.Logger, feed ledger.FeedRepository, trail audit.Reader) ActivityService {
	return &ActivityServiceImpl{feed: feed, trail: trail, logger: logger}
}

func (s *ActivityServiceImpl) AccountActivity(ctx context.Context, accountID uuid.UUID, page, perPage int) ([]*ledger.Entry, int64, error) {
	offset := (page - 1) * perPage
	entries, err := s.feed.ListByAccount(ctx, accountID, perPage, offset)
	if err != nil {
		s.logger.Error("Failed to read account activity", "account_id", accountID.String(), "error", err)
		return nil, 0, fmt.Errorf("failed to list activity: %w", err)
	}
	total, err := s.feed.CountByAccount(ctx, accountID)
	if err != nil {
		s.logger.Error("Failed to count account activity", "account_id", accountID.String(), "error", err)
		return nil, 0, fmt.Errorf("failed to count activity: %w", err)
	}
	return entries, total, nil
}

func (s *ActivityServiceImpl) Recent(ctx context.Context, limit int) ([]*ledger.Entry, error) {
	entries, err := s.feed.ListRecent(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to read recent activity", "error", err)
		return nil, fmt.Errorf("failed to list recent activity: %w", err)
	}
	return entries, nil
}

func (s *ActivityServiceImpl) AuditTrail(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]audit.Event, error) {
	if !audit.KnownEntity(entityType) {
		return nil, fmt.Errorf("%w: unknown entity type %q", shared.ErrInvalidRequest, entityType)
	}
	events, err := s.trail.ListByEntity(ctx, entityType, entityID.String(), limit)
	if err != nil {
		s.logger.Error("Failed to read audit trail", "entity_type", entityType, "entity_id", entityID.String(), "error", err)
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}
	return events, nil
}
