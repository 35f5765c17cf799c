package service

import (
	"context"

	"github.com/capital-cycle-ledger/internal/domain/account"
	"github.com/capital-cycle-ledger/internal/domain/audit"
	"github.com/capital-cycle-ledger/internal/domain/cycle"
	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TxRunner runs fn in one database transaction. *persistence.PostgresDB implements it.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// AccountManager loads and persists accounts inside a settlement transaction
type AccountManager interface {
	Lock(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*account.Account, error)
	// LockActive is Lock that refuses blocked accounts.
	LockActive(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*account.Account, error)
	Save(ctx context.Context, tx pgx.Tx, acc *account.Account) error
	HasDeposits(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

// LedgerWriter appends ledger entries together with their outbox messages
type LedgerWriter interface {
	Append(ctx context.Context, tx pgx.Tx, entries ...*ledger.Entry) error
}

// CycleAccountant answers cycle queries, optionally inside a transaction (tx may be nil)
type CycleAccountant interface {
	Progress(ctx context.Context, tx pgx.Tx, acc *account.Account) (cycle.Progress, error)
}

// AddressAllocator performs address pool transitions inside a transaction
type AddressAllocator interface {
	Reserve(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal) (*pool.Address, error)
	Attach(ctx context.Context, tx pgx.Tx, reservationID, taskID uuid.UUID) (*pool.Address, error)
	// Consume requires t.AssignedAddressID to be set.
	Consume(ctx context.Context, tx pgx.Tx, t *task.Task, received decimal.Decimal) (pool.Claim, error)
	Release(ctx context.Context, tx pgx.Tx, addressID uuid.UUID) (*pool.Address, bool, error)
	// Detach removes a terminally rejected task's claim on its address.
	Detach(ctx context.Context, tx pgx.Tx, t *task.Task) (released bool, err error)
}

// ReferralRewarder applies first-deposit passive rates and referral commissions
type ReferralRewarder interface {
	OnFirstDeposit(ctx context.Context, tx pgx.Tx, referred *account.Account, amount decimal.Decimal, taskID uuid.UUID) ([]*ledger.Entry, error)
}

// AuditRecorder forwards events to the audit sink after commit; failures are logged only
type AuditRecorder interface {
	Record(ctx context.Context, events ...audit.Event)
}

// InventoryWatcher checks the pool after commit and fires low-inventory alerts
type InventoryWatcher interface {
	Check(ctx context.Context)
}

// RequestValidator validates task requests before any transaction starts
type RequestValidator interface {
	Validate(req *task.Request) error
}
