package components

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/account"
	"github.com/capital-cycle-ledger/internal/domain/audit"
	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/outbox"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/settings"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockAccountRepo struct {
	mock.Mock
}

func (m *MockAccountRepo) Create(ctx context.Context, acc *account.Account) error {
	args := m.Called(ctx, acc)
	return args.Error(0)
}

func (m *MockAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountRepo) Update(ctx context.Context, acc *account.Account) error {
	args := m.Called(ctx, acc)
	return args.Error(0)
}

func (m *MockAccountRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountRepo) HasDeposits(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepo) ListCommissionCandidates(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, after, limit)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockAccountRepo) ListAccrualCandidates(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, after, limit)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockAccountRepo) WithTx(tx pgx.Tx) account.Repository {
	return m
}

type MockLedgerRepo struct {
	mock.Mock
}

func (m *MockLedgerRepo) Create(ctx context.Context, entry *ledger.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerRepo) LatestCutoff(ctx context.Context, accountID uuid.UUID) (*time.Time, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

func (m *MockLedgerRepo) SumSince(ctx context.Context, accountID uuid.UUID, kinds []ledger.Kind, tags []ledger.Tag, cutoff *time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID, kinds, tags, cutoff)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockLedgerRepo) CountByKind(ctx context.Context, accountID uuid.UUID, kind ledger.Kind) (int64, error) {
	args := m.Called(ctx, accountID, kind)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepo) HasTag(ctx context.Context, accountID uuid.UUID, tag ledger.Tag) (bool, error) {
	args := m.Called(ctx, accountID, tag)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	args := m.Called(ctx, accountID, limit, offset)
	return args.Get(0).([]*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepo) WithTx(tx pgx.Tx) ledger.Repository {
	return m
}

type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepo) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository {
	return m
}

type MockAddressRepo struct {
	mock.Mock
}

func (m *MockAddressRepo) Import(ctx context.Context, addresses []string) (int64, error) {
	args := m.Called(ctx, addresses)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAddressRepo) address(args mock.Arguments) (*pool.Address, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pool.Address), args.Error(1)
}

func (m *MockAddressRepo) GetByID(ctx context.Context, id uuid.UUID) (*pool.Address, error) {
	return m.address(m.Called(ctx, id))
}

func (m *MockAddressRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*pool.Address, error) {
	return m.address(m.Called(ctx, id))
}

func (m *MockAddressRepo) LockOpenReservation(ctx context.Context, accountID uuid.UUID) (*pool.Address, error) {
	return m.address(m.Called(ctx, accountID))
}

func (m *MockAddressRepo) LockOldestAvailable(ctx context.Context) (*pool.Address, error) {
	return m.address(m.Called(ctx))
}

func (m *MockAddressRepo) Update(ctx context.Context, address *pool.Address) error {
	args := m.Called(ctx, address)
	return args.Error(0)
}

func (m *MockAddressRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAddressRepo) RecycleExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAddressRepo) Inventory(ctx context.Context) (pool.Inventory, error) {
	args := m.Called(ctx)
	return args.Get(0).(pool.Inventory), args.Error(1)
}

func (m *MockAddressRepo) WithTx(tx pgx.Tx) pool.Repository {
	return m
}

type MockTaskRepo struct {
	mock.Mock
}

func (m *MockTaskRepo) Create(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskRepo) Update(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepo) ListOpenByAddress(ctx context.Context, addressID uuid.UUID, exclude uuid.UUID) ([]*task.Task, error) {
	args := m.Called(ctx, addressID, exclude)
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockTaskRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*task.Task, error) {
	args := m.Called(ctx, accountID, limit, offset)
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockTaskRepo) ListByStatus(ctx context.Context, status task.Status, limit, offset int) ([]*task.Task, error) {
	args := m.Called(ctx, status, limit, offset)
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockTaskRepo) WithTx(tx pgx.Tx) task.Repository {
	return m
}

type MockSettingsRepo struct {
	mock.Mock
}

func (m *MockSettingsRepo) GetDecimal(ctx context.Context, key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, key, fallback)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockSettingsRepo) SetDecimal(ctx context.Context, key string, value decimal.Decimal) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockSettingsRepo) WithTx(tx pgx.Tx) settings.Repository {
	return m
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyLowInventory(ctx context.Context, available int64, threshold int) error {
	args := m.Called(ctx, available, threshold)
	return args.Error(0)
}

type MockAuditSink struct {
	mock.Mock
}

func (m *MockAuditSink) Record(ctx context.Context, event audit.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
