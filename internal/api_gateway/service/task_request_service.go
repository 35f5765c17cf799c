package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/capital-cycle-ledger/internal/api_gateway/middleware"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/capital-cycle-ledger/internal/platform/messaging/producers"
	"github.com/google/uuid"
)

// TaskLookup finds a task by id
type TaskLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error)
}

// TaskRequestServiceImpl publishes task requests to the settlement worker
type TaskRequestServiceImpl struct {
	tasks    TaskLookup
	producer producers.MessagePublisher
	logger   *slog.Logger
}

func NewTaskRequestService(logger *slog.Logger, tasks TaskLookup, producer producers.MessagePublisher) TaskRequestService {
	return &TaskRequestServiceImpl{
		tasks:    tasks,
		producer: producer,
		logger:   logger,
	}
}

// RequestIDFor derives a stable request id for a client idempotency key. Keys are
// scoped to the account so two accounts may reuse the same key.
func RequestIDFor(accountID uuid.UUID, idempotencyKey string) uuid.UUID {
	return uuid.NewSHA1(accountID, []byte(idempotencyKey))
}

func (s *TaskRequestServiceImpl) Submit(ctx context.Context, req *task.Request, idempotencyKey string) (uuid.UUID, *task.Task, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = middleware.CorrelationIDFromContext(ctx)
	}
	logger := s.logger
	if req.CorrelationID != "" {
		logger = s.logger.With("correlation_id", req.CorrelationID)
	}

	if idempotencyKey != "" {
		req.RequestID = RequestIDFor(req.AccountID, idempotencyKey)
		existing, err := s.tasks.GetByID(ctx, req.RequestID)
		switch {
		case err == nil:
			logger.Info("Found existing task for idempotency key",
				"idempotency_key", idempotencyKey,
				"task_id", existing.ID.String(),
				"status", string(existing.Status),
			)
			return existing.ID, existing, nil
		case !errors.Is(err, shared.ErrNotFound):
			logger.Error("Failed to check for existing task with idempotency key",
				"idempotency_key", idempotencyKey,
				"error", err,
			)
			return uuid.Nil, nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
	}
	if req.RequestID == uuid.Nil {
		req.RequestID = uuid.New()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	// Keyed by account so one account's requests stay ordered on a partition.
	if err := s.producer.Publish(ctx, req.AccountID.String(), req); err != nil {
		logger.Error("Failed to publish task request",
			"request_id", req.RequestID.String(),
			"account_id", req.AccountID.String(),
			"kind", string(req.Kind),
			"error", err,
		)
		return uuid.Nil, nil, fmt.Errorf("failed to publish task request: %w", err)
	}

	logger.Info("Task request published",
		"request_id", req.RequestID.String(),
		"account_id", req.AccountID.String(),
		"kind", string(req.Kind),
		"amount", req.Amount.String(),
	)
	return req.RequestID, nil, nil
}
