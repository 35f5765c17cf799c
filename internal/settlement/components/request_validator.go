package components

import (
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/capital-cycle-ledger/internal/settlement/service"
	"github.com/google/uuid"
)

type RequestValidatorImpl struct {
	logger *slog.Logger
}

func NewRequestValidator(logger *slog.Logger) service.RequestValidator {
	return &RequestValidatorImpl{logger: logger}
}

// Validate checks a task request's shape. Account state is checked later, under lock.
func (v *RequestValidatorImpl) Validate(req *task.Request) error {
	logger := v.logger
	if req.CorrelationID != "" {
		logger = v.logger.With("correlation_id", req.CorrelationID)
	}

	if req.AccountID == uuid.Nil {
		logger.Warn("Task request without account", "request_id", req.RequestID.String())
		return fmt.Errorf("%w: account_id is required", shared.ErrInvalidRequest)
	}
	if !req.Kind.Valid() {
		logger.Warn("Unknown task kind", "request_id", req.RequestID.String(), "kind", string(req.Kind))
		return fmt.Errorf("%w: unknown task kind %q", shared.ErrInvalidRequest, req.Kind)
	}
	if req.Kind != task.KindLiquidation && !req.Amount.IsPositive() {
		logger.Warn("Invalid amount", "request_id", req.RequestID.String(), "amount", req.Amount.String())
		return fmt.Errorf("%w: %s", shared.ErrInvalidAmount, req.Amount.String())
	}
	if req.Kind == task.KindDepositAuto && req.ReservationID == nil {
		return fmt.Errorf("%w: reservation_id is required for %s", shared.ErrInvalidRequest, task.KindDepositAuto)
	}
	if req.ProfitCredit && req.Kind != task.KindDepositManual {
		return fmt.Errorf("%w: profit_credit is only valid for %s", shared.ErrInvalidRequest, task.KindDepositManual)
	}
	return nil
}
