package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/capital-cycle-ledger/internal/platform/messaging/producers"
)

// TaskProcessor creates the task a request describes
type TaskProcessor interface {
	Process(ctx context.Context, req *task.Request) (*task.Task, error)
}

// TaskRequestHandler turns task request messages into pending tasks
type TaskRequestHandler struct {
	processor TaskProcessor
	producer  producers.DeadLetterPublisher
	logger    *slog.Logger
}

func NewTaskRequestHandler(
	logger *slog.Logger,
	processor TaskProcessor,
	producer producers.DeadLetterPublisher,
) *TaskRequestHandler {
	return &TaskRequestHandler{
		processor: processor,
		producer:  producer,
		logger:    logger,
	}
}

// permanent reports errors that no redelivery can fix.
func permanent(err error) bool {
	for _, target := range []error{
		shared.ErrInvalidRequest,
		shared.ErrInvalidAmount,
		shared.ErrNotFound,
		shared.ErrForbidden,
		shared.ErrInvalidState,
		shared.ErrInsufficientFunds,
		shared.ErrPoolExhausted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// HandleMessage processes one Kafka message. Returning nil commits the offset.
func (h *TaskRequestHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var req task.Request
	if err := json.Unmarshal(value, &req); err != nil {
		h.logger.Error("Failed to unmarshal task request from Kafka message",
			"error", err,
			"message_key", string(key),
		)
		if h.deadLetter(ctx, key, value, "unmarshal task request: "+err.Error()) {
			return nil
		}
		return fmt.Errorf("failed to unmarshal message value: %w", err)
	}

	logger := h.logger
	if req.CorrelationID != "" {
		logger = h.logger.With("correlation_id", req.CorrelationID)
	}

	logger.Info("Received task request",
		"request_id", req.RequestID.String(),
		"account_id", req.AccountID.String(),
		"kind", req.Kind,
		"amount", req.Amount.String(),
	)

	t, err := h.processor.Process(ctx, &req)
	if err != nil {
		if permanent(err) {
			logger.Warn("Task request rejected", "request_id", req.RequestID.String(), "error", err)
			if h.deadLetter(ctx, key, value, err.Error()) {
				return nil
			}
		}
		logger.Error("Failed to process task request",
			"request_id", req.RequestID.String(),
			"account_id", req.AccountID.String(),
			"error", err,
		)
		return fmt.Errorf("processing task request %s failed: %w", req.RequestID.String(), err)
	}

	logger.Info("Task created from request", "request_id", req.RequestID.String(), "task_id", t.ID.String())
	return nil
}

// deadLetter reports whether the message was parked on the DLQ.
func (h *TaskRequestHandler) deadLetter(ctx context.Context, key, value []byte, reason string) bool {
	if h.producer == nil {
		return false
	}
	if err := h.producer.PublishToDLQ(ctx, string(key), value, reason); err != nil {
		h.logger.Error("Failed to publish message to DLQ",
			"dlq_error", err,
			"message_key", string(key),
		)
		return false
	}
	h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", reason)
	return true
}
