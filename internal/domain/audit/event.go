// Package audit describes the record emitted after every state-changing operation.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names recorded in the audit log.
const (
	ActionTaskCreated       = "task.created"
	ActionTaskPreApproved   = "task.pre_approved"
	ActionTaskPreRejected   = "task.pre_rejected"
	ActionTaskCompleted     = "task.completed"
	ActionTaskRejected      = "task.rejected"
	ActionAddressReserved   = "address.reserved"
	ActionAddressReleased   = "address.released"
	ActionAddressDeleted    = "address.deleted"
	ActionAddressesImported = "address.imported"
	ActionAddressesRecycled = "address.recycled"
	ActionAddressClaimLost  = "address.claim_lost"
	ActionCommissionCharged = "account.commission_charged"
	ActionProfitAccrued     = "account.profit_accrued"
	ActionReinvested        = "account.reinvested"
)

// Event is one audit record.
type Event struct {
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	OldValue   any       `json:"old_value,omitempty"`
	NewValue   any       `json:"new_value,omitempty"`
	At         time.Time `json:"at"`
}

// SystemActor identifies scheduled passes and other unattended mutations.
const SystemActor = "system"

// NewEvent stamps an event with the current time.
func NewEvent(actorID uuid.UUID, actorRole, action, entityType, entityID string, oldValue, newValue any) Event {
	actor := SystemActor
	if actorID != uuid.Nil {
		actor = actorID.String()
	}
	return Event{
		ActorID:    actor,
		ActorRole:  actorRole,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		OldValue:   oldValue,
		NewValue:   newValue,
		At:         time.Now().UTC(),
	}
}

// Entity types events are filed under.
const (
	EntityTask    = "task"
	EntityAddress = "address"
	EntityAccount = "account"
)

// KnownEntity reports whether entityType is one the settlement code records.
func KnownEntity(entityType string) bool {
	switch entityType {
	case EntityTask, EntityAddress, EntityAccount:
		return true
	}
	return false
}

// Sink receives audit events after commit. Implementations must not block settlement.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Reader returns the trail of one entity, newest first.
type Reader interface {
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]Event, error)
}
