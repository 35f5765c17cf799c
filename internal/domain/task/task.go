package task

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the type of user request.
type Kind string

const (
	KindDepositAuto   Kind = "DEPOSIT_AUTO"
	KindDepositManual Kind = "DEPOSIT_MANUAL"
	KindWithdrawal    Kind = "WITHDRAWAL"
	KindLiquidation   Kind = "LIQUIDATION"
)

// Status is the review state of a task. COMPLETED and REJECTED are terminal.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusPreApproved Status = "PRE_APPROVED"
	StatusPreRejected Status = "PRE_REJECTED"
	StatusCompleted   Status = "COMPLETED"
	StatusRejected    Status = "REJECTED"
)

// Task is a deposit, withdrawal or liquidation request awaiting settlement.
type Task struct {
	ID                        uuid.UUID           `json:"id"`
	AccountID                 uuid.UUID           `json:"account_id"`
	Kind                      Kind                `json:"kind"`
	Status                    Status              `json:"status"`
	RequestedAmount           decimal.Decimal     `json:"requested_amount"`
	SettledAmount             decimal.NullDecimal `json:"settled_amount"`
	ProfitCredit              bool                `json:"profit_credit"`
	CollaboratorID            *uuid.UUID          `json:"collaborator_id,omitempty"`
	DestinationCollaboratorID *uuid.UUID          `json:"destination_collaborator_id,omitempty"`
	AssignedAddressID         *uuid.UUID          `json:"assigned_address_id,omitempty"`
	PreReviewedBy             *uuid.UUID          `json:"pre_reviewed_by,omitempty"`
	ApprovedBy                *uuid.UUID          `json:"approved_by,omitempty"`
	RejectionReason           string              `json:"rejection_reason,omitempty"`
	ProofRef                  string              `json:"proof_ref,omitempty"`
	CreatedAt                 time.Time           `json:"created_at"`
	UpdatedAt                 time.Time           `json:"updated_at"`
	SettledAt                 *time.Time          `json:"settled_at,omitempty"`
}

// NewTask creates a PENDING task.
func NewTask(accountID uuid.UUID, kind Kind, amount decimal.Decimal) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:              uuid.New(),
		AccountID:       accountID,
		Kind:            kind,
		Status:          StatusPending,
		RequestedAmount: amount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (k Kind) Valid() bool {
	switch k {
	case KindDepositAuto, KindDepositManual, KindWithdrawal, KindLiquidation:
		return true
	}
	return false
}

// IsDeposit reports whether the kind credits the account.
func (k Kind) IsDeposit() bool {
	return k == KindDepositAuto || k == KindDepositManual
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// IsOpen reports whether a task still holds a claim on its address.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusPreApproved
}

// IsDirect reports whether no collaborator is assigned on either side,
// which puts the task on the two-tier review flow.
func (t *Task) IsDirect() bool {
	return t.CollaboratorID == nil && t.DestinationCollaboratorID == nil
}

// IsAssignedTo reports whether id is the deposit or payout collaborator.
func (t *Task) IsAssignedTo(id uuid.UUID) bool {
	return (t.CollaboratorID != nil && *t.CollaboratorID == id) ||
		(t.DestinationCollaboratorID != nil && *t.DestinationCollaboratorID == id)
}

// SettlementAmount is the received amount when supplied, else the requested amount.
func (t *Task) SettlementAmount(received decimal.NullDecimal) decimal.Decimal {
	if received.Valid && received.Decimal.IsPositive() {
		return received.Decimal
	}
	return t.RequestedAmount
}

// Complete moves the task to COMPLETED.
func (t *Task) Complete(approvedBy uuid.UUID, amount decimal.Decimal, proofRef string) {
	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.ApprovedBy = &approvedBy
	t.SettledAmount = decimal.NewNullDecimal(amount)
	if proofRef != "" {
		t.ProofRef = proofRef
	}
	t.SettledAt = &now
	t.UpdatedAt = now
}

// Reject moves the task to REJECTED.
func (t *Task) Reject(reviewer uuid.UUID, reason string) {
	now := time.Now().UTC()
	t.Status = StatusRejected
	t.ApprovedBy = &reviewer
	t.RejectionReason = reason
	t.SettledAt = &now
	t.UpdatedAt = now
}

// PreReview records a first-tier decision.
func (t *Task) PreReview(reviewer uuid.UUID, status Status, reason string) {
	t.Status = status
	t.PreReviewedBy = &reviewer
	if reason != "" {
		t.RejectionReason = reason
	}
	t.UpdatedAt = time.Now().UTC()
}
