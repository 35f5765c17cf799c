package handler

import (
	"time"

	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateDepositRequest asks for a deposit task. With a reservation id the task
// is an automatic deposit against that address.
type CreateDepositRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	ReservationID  *uuid.UUID      `json:"reservation_id,omitempty"`
	CollaboratorID *uuid.UUID      `json:"collaborator_id,omitempty"`
	ProfitCredit   bool            `json:"profit_credit,omitempty"`
	ProofRef       string          `json:"proof_ref,omitempty" binding:"max=512"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" binding:"max=128"`
}

type CreateWithdrawalRequest struct {
	Amount                    decimal.Decimal `json:"amount"`
	DestinationCollaboratorID *uuid.UUID      `json:"destination_collaborator_id,omitempty"`
	IdempotencyKey            string          `json:"idempotency_key,omitempty" binding:"max=128"`
}

// CreateLiquidationRequest may omit the amount to liquidate the whole capital.
type CreateLiquidationRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" binding:"max=128"`
}

type ApproveRequest struct {
	ReceivedAmount decimal.NullDecimal `json:"received_amount"`
	ProofRef       string              `json:"proof_ref,omitempty" binding:"max=512"`
}

type RejectRequest struct {
	Reason string `json:"reason" binding:"max=512"`
}

type ReserveRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type ImportAddressesRequest struct {
	Addresses []string `json:"addresses" binding:"required,min=1,max=10000"`
}

// TaskResponse represents a task in API responses
type TaskResponse struct {
	ID                string  `json:"id"`
	AccountID         string  `json:"account_id"`
	Kind              string  `json:"kind"`
	Status            string  `json:"status"`
	RequestedAmount   string  `json:"requested_amount"`
	SettledAmount     *string `json:"settled_amount,omitempty"`
	AssignedAddressID string  `json:"assigned_address_id,omitempty"`
	RejectionReason   string  `json:"rejection_reason,omitempty"`
	CreatedAt         string  `json:"created_at"`
	SettledAt         string  `json:"settled_at,omitempty"`
}

// EntryResponse represents a ledger entry in API responses
type EntryResponse struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Kind      string `json:"kind"`
	Tag       string `json:"tag"`
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

// AddressResponse represents a deposit address in API responses
type AddressResponse struct {
	ReservationID   string `json:"reservation_id"`
	Address         string `json:"address"`
	Status          string `json:"status"`
	RequestedAmount string `json:"requested_amount,omitempty"`
	ReservedAt      string `json:"reserved_at,omitempty"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

func mapTaskToResponse(t *task.Task) TaskResponse {
	resp := TaskResponse{
		ID:              t.ID.String(),
		AccountID:       t.AccountID.String(),
		Kind:            string(t.Kind),
		Status:          string(t.Status),
		RequestedAmount: t.RequestedAmount.String(),
		RejectionReason: t.RejectionReason,
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
	}
	if t.SettledAmount.Valid {
		settled := t.SettledAmount.Decimal.String()
		resp.SettledAmount = &settled
	}
	if t.AssignedAddressID != nil {
		resp.AssignedAddressID = t.AssignedAddressID.String()
	}
	if t.SettledAt != nil {
		resp.SettledAt = t.SettledAt.Format(time.RFC3339)
	}
	return resp
}

func mapTasksToResponse(tasks []*task.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, mapTaskToResponse(t))
	}
	return out
}

func mapEntryToResponse(e *ledger.Entry) EntryResponse {
	resp := EntryResponse{
		ID:        e.ID.String(),
		AccountID: e.AccountID.String(),
		Kind:      string(e.Kind),
		Tag:       string(e.Tag),
		Amount:    e.Amount.String(),
		Reference: e.Reference,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
	if e.TaskID != nil {
		resp.TaskID = e.TaskID.String()
	}
	return resp
}

func mapEntriesToResponse(entries []*ledger.Entry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, mapEntryToResponse(e))
	}
	return out
}

func mapAddressToResponse(a *pool.Address) AddressResponse {
	resp := AddressResponse{
		ReservationID: a.ID.String(),
		Address:       a.Address,
		Status:        string(a.Status),
	}
	if a.RequestedAmount.Valid {
		resp.RequestedAmount = a.RequestedAmount.Decimal.String()
	}
	if a.ReservedAt != nil {
		resp.ReservedAt = a.ReservedAt.Format(time.RFC3339)
	}
	return resp
}
