package task

import (
	"context"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines task persistence operations
type Repository interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Task, error)
	Update(ctx context.Context, task *Task) error

	// ListOpenByAddress returns PENDING / PRE_APPROVED tasks referencing the
	// address, oldest first, excluding the given task id.
	ListOpenByAddress(ctx context.Context, addressID uuid.UUID, exclude uuid.UUID) ([]*Task, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Task, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Task, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrTaskNotFound indicates missing task
type ErrTaskNotFound struct {
	TaskID uuid.UUID
}

func (e ErrTaskNotFound) Error() string {
	return "task not found: " + e.TaskID.String()
}

func (e ErrTaskNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	t, ok := target.(ErrTaskNotFound)
	return ok && (t.TaskID == uuid.Nil || t.TaskID == e.TaskID)
}

// ErrTaskAlreadySettled is returned on any review of a terminal task.
type ErrTaskAlreadySettled struct {
	TaskID uuid.UUID
	Status Status
}

func (e ErrTaskAlreadySettled) Error() string {
	return "task " + e.TaskID.String() + " already settled as " + string(e.Status)
}

func (e ErrTaskAlreadySettled) Is(target error) bool {
	return target == shared.ErrAlreadySettled
}

// ErrReviewerForbidden is returned when the reviewer lacks authority over the task.
type ErrReviewerForbidden struct {
	TaskID     uuid.UUID
	ReviewerID uuid.UUID
	Tier       Tier
}

func (e ErrReviewerForbidden) Error() string {
	return "reviewer " + e.ReviewerID.String() + " (" + string(e.Tier) + ") may not settle task " + e.TaskID.String()
}

func (e ErrReviewerForbidden) Is(target error) bool {
	return target == shared.ErrForbidden
}
