package pool

import (
	"slices"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a deposit address. USED is terminal.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusReserved  Status = "RESERVED"
	StatusUsed      Status = "USED"
)

// Address is a single-use deposit address from the pre-uploaded inventory.
// Its id doubles as the reservation id while it is RESERVED.
type Address struct {
	ID                  uuid.UUID           `json:"id"`
	Address             string              `json:"address"`
	Status              Status              `json:"status"`
	ReservedAt          *time.Time          `json:"reserved_at,omitempty"`
	ReservedForTaskID   *uuid.UUID          `json:"reserved_for_task_id,omitempty"`
	ReservedByAccountID *uuid.UUID          `json:"reserved_by_account_id,omitempty"`
	RequestedAmount     decimal.NullDecimal `json:"requested_amount"`
	UsedByAccountID     *uuid.UUID          `json:"used_by_account_id,omitempty"`
	ReceivedAmount      decimal.NullDecimal `json:"received_amount"`
	UsedAt              *time.Time          `json:"used_at,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
}

// Inventory counts addresses per status.
type Inventory struct {
	Available int64 `json:"available"`
	Reserved  int64 `json:"reserved"`
	Used      int64 `json:"used"`
}

func (a *Address) invalid(op string) error {
	return shared.InvalidStateError{Entity: "address", Status: string(a.Status), Op: op}
}

// Reserve flips an AVAILABLE address to RESERVED for accountID.
func (a *Address) Reserve(accountID uuid.UUID, amount decimal.Decimal, now time.Time) error {
	if a.Status != StatusAvailable {
		return a.invalid("reserve")
	}
	a.Status = StatusReserved
	a.ReservedAt = &now
	a.ReservedByAccountID = &accountID
	a.ReservedForTaskID = nil
	a.RequestedAmount = decimal.NewNullDecimal(amount)
	return nil
}

// Accumulate adds amount to an open reservation's requested amount.
func (a *Address) Accumulate(amount decimal.Decimal) error {
	if a.Status != StatusReserved {
		return a.invalid("accumulate")
	}
	a.RequestedAmount = decimal.NewNullDecimal(a.RequestedAmount.Decimal.Add(amount))
	return nil
}

// AttachTo links the reservation to a task. The first attached task keeps the pointer.
func (a *Address) AttachTo(taskID uuid.UUID) error {
	if a.Status != StatusReserved {
		return a.invalid("attach")
	}
	if a.ReservedForTaskID == nil {
		a.ReservedForTaskID = &taskID
	}
	return nil
}

// Release returns a RESERVED address to AVAILABLE. Releasing an AVAILABLE
// address is a no-op and reports false.
func (a *Address) Release() (bool, error) {
	switch a.Status {
	case StatusAvailable:
		return false, nil
	case StatusUsed:
		return false, a.invalid("release")
	}
	a.Status = StatusAvailable
	a.ReservedAt = nil
	a.ReservedForTaskID = nil
	a.ReservedByAccountID = nil
	a.RequestedAmount = decimal.NullDecimal{}
	return true, nil
}

// Claim describes what a deposit task still holds on its address.
type Claim string

const (
	// ClaimReserved: the reservation still belongs to the task's account and
	// covers the task.
	ClaimReserved Claim = "RESERVED"
	// ClaimShared: a sibling task of the same account already consumed it.
	ClaimShared Claim = "SHARED"
	// ClaimLost: the reservation was recycled or now belongs to someone else.
	ClaimLost Claim = "LOST"
)

// ClaimOf reports the claim a deposit of accountID through taskID has on the
// address. open lists the other in-flight tasks attached to it.
func (a *Address) ClaimOf(accountID, taskID uuid.UUID, open []uuid.UUID) Claim {
	switch a.Status {
	case StatusUsed:
		if a.UsedByAccountID != nil && *a.UsedByAccountID == accountID {
			return ClaimShared
		}
	case StatusReserved:
		if a.ReservedByAccountID == nil || *a.ReservedByAccountID != accountID {
			return ClaimLost
		}
		if a.ReservedForTaskID == nil || *a.ReservedForTaskID == taskID || slices.Contains(open, *a.ReservedForTaskID) {
			return ClaimReserved
		}
	}
	return ClaimLost
}

// MarkUsed consumes an address reserved by accountID.
func (a *Address) MarkUsed(accountID uuid.UUID, received decimal.Decimal, now time.Time) error {
	if a.Status != StatusReserved {
		return a.invalid("mark used")
	}
	if a.ReservedByAccountID != nil && *a.ReservedByAccountID != accountID {
		return shared.InvalidStateError{Entity: "address", Status: "reserved by another account", Op: "mark used"}
	}
	a.Status = StatusUsed
	a.UsedByAccountID = &accountID
	a.ReceivedAmount = decimal.NewNullDecimal(received)
	a.UsedAt = &now
	return nil
}

// AddReceived books a further deposit that arrived on an already USED address.
func (a *Address) AddReceived(received decimal.Decimal) error {
	if a.Status != StatusUsed {
		return a.invalid("add received")
	}
	a.ReceivedAmount = decimal.NewNullDecimal(a.ReceivedAmount.Decimal.Add(received))
	return nil
}

// Shrink takes a rejected task's amount off the reservation (floor zero) and,
// when the reservation pointed at that task, re-points it to next.
func (a *Address) Shrink(amount decimal.Decimal, rejectedTaskID uuid.UUID, next *uuid.UUID) error {
	if a.Status != StatusReserved {
		return a.invalid("shrink")
	}
	remaining := a.RequestedAmount.Decimal.Sub(amount)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	a.RequestedAmount = decimal.NewNullDecimal(remaining)
	if a.ReservedForTaskID != nil && *a.ReservedForTaskID == rejectedTaskID {
		a.ReservedForTaskID = next
	}
	return nil
}
