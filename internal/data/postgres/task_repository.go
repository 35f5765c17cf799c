package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/capital-cycle-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const taskColumns = `id, account_id, kind, status, requested_amount, settled_amount, profit_credit,
		collaborator_id, destination_collaborator_id, assigned_address_id, pre_reviewed_by, approved_by,
		rejection_reason, proof_ref, created_at, updated_at, settled_at`

// TaskRepository implements task.Repository for PostgreSQL
type TaskRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewTaskRepository(logger *slog.Logger, db *persistence.PostgresDB) task.Repository {
	return &TaskRepository{querier: db.Querier(), logger: logger}
}

func (r *TaskRepository) WithTx(tx pgx.Tx) task.Repository {
	return &TaskRepository{querier: tx, logger: r.logger}
}

func scanTask(row pgx.Row, t *task.Task) error {
	return row.Scan(
		&t.ID,
		&t.AccountID,
		&t.Kind,
		&t.Status,
		&t.RequestedAmount,
		&t.SettledAmount,
		&t.ProfitCredit,
		&t.CollaboratorID,
		&t.DestinationCollaboratorID,
		&t.AssignedAddressID,
		&t.PreReviewedBy,
		&t.ApprovedBy,
		&t.RejectionReason,
		&t.ProofRef,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.SettledAt,
	)
}

func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	query := `
		INSERT INTO tasks (id, account_id, kind, status, requested_amount, profit_credit, collaborator_id,
			destination_collaborator_id, assigned_address_id, proof_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.querier.Exec(ctx, query,
		t.ID,
		t.AccountID,
		string(t.Kind),
		string(t.Status),
		t.RequestedAmount,
		t.ProfitCredit,
		t.CollaboratorID,
		t.DestinationCollaboratorID,
		t.AssignedAddressID,
		t.ProofRef,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create task", "task_id", t.ID.String(), "account_id", t.AccountID.String(), "error", err)
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var t task.Task
	if err := scanTask(r.querier.QueryRow(ctx, query, id), &t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, task.ErrTaskNotFound{TaskID: id}
		}
		r.logger.Error("Failed to get task", "task_id", id.String(), "lock", lock, "error", err)
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &t, nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	return r.get(ctx, id, false)
}

// LockForUpdate locks the task row; the terminal-state check runs on its result.
func (r *TaskRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	return r.get(ctx, id, true)
}

func (r *TaskRepository) Update(ctx context.Context, t *task.Task) error {
	query := `
		UPDATE tasks
		SET status = $1, settled_amount = $2, assigned_address_id = $3, pre_reviewed_by = $4,
			approved_by = $5, rejection_reason = $6, proof_ref = $7, updated_at = $8, settled_at = $9
		WHERE id = $10
	`

	result, err := r.querier.Exec(ctx, query,
		string(t.Status),
		t.SettledAmount,
		t.AssignedAddressID,
		t.PreReviewedBy,
		t.ApprovedBy,
		t.RejectionReason,
		t.ProofRef,
		t.UpdatedAt,
		t.SettledAt,
		t.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update task", "task_id", t.ID.String(), "status", string(t.Status), "error", err)
		return fmt.Errorf("failed to update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return task.ErrTaskNotFound{TaskID: t.ID}
	}
	return nil
}

func (r *TaskRepository) ListOpenByAddress(ctx context.Context, addressID uuid.UUID, exclude uuid.UUID) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE assigned_address_id = $1 AND id <> $2 AND status IN ('PENDING', 'PRE_APPROVED')
		ORDER BY created_at, id`

	return r.list(ctx, "open tasks by address", query, addressID, exclude)
}

func (r *TaskRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	return r.list(ctx, "tasks by account", query, accountID, limit, offset)
}

func (r *TaskRepository) ListByStatus(ctx context.Context, status task.Status, limit, offset int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`

	return r.list(ctx, "tasks by status", query, string(status), limit, offset)
}

func (r *TaskRepository) list(ctx context.Context, what, query string, args ...interface{}) ([]*task.Task, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list "+what, "error", err)
		return nil, fmt.Errorf("failed to list %s: %w", what, err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		var t task.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", what, err)
	}
	return tasks, nil
}
