package service

import (
	"context"

	"github.com/capital-cycle-ledger/internal/domain/audit"
	"github.com/capital-cycle-ledger/internal/domain/cycle"
	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/task"
	settlement "github.com/capital-cycle-ledger/internal/settlement/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaskRequestService hands task creation to the settlement worker
type TaskRequestService interface {
	// Submit publishes req. With a non-empty idempotency key the request id is
	// derived from (account, key); when that task already exists it is returned
	// and nothing is published.
	Submit(ctx context.Context, req *task.Request, idempotencyKey string) (requestID uuid.UUID, existing *task.Task, err error)
}

// ActivityService reads the activity feed
type ActivityService interface {
	// AccountActivity returns a page of an account's entries and the account's total entry count
	AccountActivity(ctx context.Context, accountID uuid.UUID, page, perPage int) ([]*ledger.Entry, int64, error)
	Recent(ctx context.Context, limit int) ([]*ledger.Entry, error)
	// AuditTrail returns the newest audit events recorded for one entity
	AuditTrail(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]audit.Event, error)
}

// TaskQueryService covers the account-facing settlement calls the gateway makes directly.
// *settlement.TaskService implements it.
type TaskQueryService interface {
	GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error)
	ListTasks(ctx context.Context, accountID uuid.UUID, status task.Status, limit, offset int) ([]*task.Task, error)
	Reserve(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*pool.Address, error)
	Reinvest(ctx context.Context, accountID uuid.UUID) (*ledger.Entry, error)
	CycleProgress(ctx context.Context, accountID uuid.UUID) (cycle.Progress, error)
}

// ReviewService settles tasks. *settlement.SettlementService implements it.
type ReviewService interface {
	Approve(ctx context.Context, in settlement.ApproveInput) (*task.Task, error)
	Reject(ctx context.Context, taskID uuid.UUID, reviewer task.Reviewer, reason string) (*task.Task, error)
}

// PoolAdminService manages the address inventory. *settlement.PoolService implements it.
type PoolAdminService interface {
	Import(ctx context.Context, actor uuid.UUID, addresses []string) (int64, error)
	Inventory(ctx context.Context) (pool.Inventory, error)
	Release(ctx context.Context, actor uuid.UUID, addressID uuid.UUID) (*pool.Address, error)
	DeleteOrRelease(ctx context.Context, actor uuid.UUID, addressID uuid.UUID, remove bool) ([]*task.Task, error)
}

var (
	_ TaskQueryService = (*settlement.TaskService)(nil)
	_ ReviewService    = (*settlement.SettlementService)(nil)
	_ PoolAdminService = (*settlement.PoolService)(nil)
)
