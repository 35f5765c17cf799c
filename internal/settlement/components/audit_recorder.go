package components

import (
	"context"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/audit"
	"github.com/capital-cycle-ledger/internal/settlement/service"
)

// AuditRecorderImpl forwards events to the audit sink. A failing sink never
// affects an operation that has already committed.
type AuditRecorderImpl struct {
	sink   audit.Sink
	logger *slog.Logger
}

func NewAuditRecorder(sink audit.Sink, logger *slog.Logger) service.AuditRecorder {
	return &AuditRecorderImpl{sink: sink, logger: logger}
}

func (r *AuditRecorderImpl) Record(ctx context.Context, events ...audit.Event) {
	if r.sink == nil {
		return
	}
	for _, event := range events {
		if err := r.sink.Record(ctx, event); err != nil {
			r.logger.Error("Failed to record audit event",
				"action", event.Action,
				"entity_type", event.EntityType,
				"entity_id", event.EntityID,
				"error", err,
			)
		}
	}
}
