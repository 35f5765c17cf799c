package task

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request is the Kafka message asking the settlement worker to create a task.
type Request struct {
	RequestID                 uuid.UUID       `json:"request_id"`
	AccountID                 uuid.UUID       `json:"account_id"`
	Kind                      Kind            `json:"kind"`
	Amount                    decimal.Decimal `json:"amount"`
	ReservationID             *uuid.UUID      `json:"reservation_id,omitempty"`
	CollaboratorID            *uuid.UUID      `json:"collaborator_id,omitempty"`
	DestinationCollaboratorID *uuid.UUID      `json:"destination_collaborator_id,omitempty"`
	ProfitCredit              bool            `json:"profit_credit,omitempty"`
	ProofRef                  string          `json:"proof_ref,omitempty"`
	CorrelationID             string          `json:"correlation_id"`
	Timestamp                 time.Time       `json:"timestamp"`
}
