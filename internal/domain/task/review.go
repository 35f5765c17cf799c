package task

import (
	"strings"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Tier is the authority level of a reviewer.
type Tier string

const (
	TierFirst        Tier = "FIRST_TIER"
	TierSecond       Tier = "SECOND_TIER"
	TierCollaborator Tier = "COLLABORATOR"
)

// ParseTier accepts the tier name case-insensitively.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TierFirst, TierSecond, TierCollaborator:
		return t, true
	}
	return "", false
}

// Reviewer is the staff member acting on a task.
type Reviewer struct {
	ID   uuid.UUID
	Tier Tier
}

// Decision is the outcome of routing a review.
type Decision int

const (
	// DecisionPreReview only moves a direct task to PRE_APPROVED / PRE_REJECTED.
	DecisionPreReview Decision = iota + 1
	// DecisionTerminal settles the task.
	DecisionTerminal
)

// Route decides what a reviewer may do with a task. It must be called on the
// row locked inside the settlement transaction.
func Route(t *Task, r Reviewer) (Decision, error) {
	if t.Status.IsTerminal() {
		return 0, ErrTaskAlreadySettled{TaskID: t.ID, Status: t.Status}
	}

	if !t.IsDirect() {
		if r.Tier == TierSecond || t.IsAssignedTo(r.ID) {
			return DecisionTerminal, nil
		}
		return 0, ErrReviewerForbidden{TaskID: t.ID, ReviewerID: r.ID, Tier: r.Tier}
	}

	switch r.Tier {
	case TierSecond:
		return DecisionTerminal, nil
	case TierFirst:
		if t.Status != StatusPending {
			return 0, shared.InvalidStateError{Entity: "task", Status: string(t.Status), Op: "pre-review"}
		}
		return DecisionPreReview, nil
	default:
		return 0, ErrReviewerForbidden{TaskID: t.ID, ReviewerID: r.ID, Tier: r.Tier}
	}
}
