package outbox_poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/outbox"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
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

type MockFeedRepo struct {
	mock.Mock
}

func (m *MockFeedRepo) Upsert(ctx context.Context, entry *ledger.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockFeedRepo) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockFeedRepo) ListRecent(ctx context.Context, limit int) ([]*ledger.Entry, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*ledger.Entry), args.Error(1)
}

func (m *MockFeedRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	args := m.Called(ctx, accountID, limit, offset)
	return args.Get(0).([]*ledger.Entry), args.Error(1)
}

func (m *MockFeedRepo) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockMessagePublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMessage(t *testing.T, id int64) (*outbox.Message, *ledger.Entry) {
	t.Helper()
	entry := ledger.NewEntry(uuid.New(), ledger.KindDeposit, ledger.TagNone, decimal.NewFromInt(250), "deposit", nil)
	msg, err := outbox.NewMessage(entry)
	require.NoError(t, err)
	msg.ID = id
	return msg, entry
}

func TestLedgerPublisher_Publish(t *testing.T) {
	msg, entry := newMessage(t, 7)
	matchesEntry := mock.MatchedBy(func(e *ledger.Entry) bool {
		return e.ID == entry.ID && e.Amount.Equal(entry.Amount)
	})

	tests := []struct {
		name          string
		message       *outbox.Message
		setupMocks    func(o *MockOutboxRepo, f *MockFeedRepo, p *MockMessagePublisher)
		expectedError string
		undecodable   bool
		wantStatus    shared.OutboxStatus
	}{
		{
			name:    "relays to feed and topic",
			message: msg,
			setupMocks: func(o *MockOutboxRepo, f *MockFeedRepo, p *MockMessagePublisher) {
				f.On("Upsert", mock.Anything, matchesEntry).Return(nil).Once()
				p.On("Publish", mock.Anything, entry.AccountID.String(), matchesEntry).Return(nil).Once()
				o.On("UpdateStatus", mock.Anything, int64(7), shared.OutboxStatusProcessed).Return(nil).Once()
			},
			wantStatus: shared.OutboxStatusProcessed,
		},
		{
			name:    "feed failure leaves the message pending",
			message: msg,
			setupMocks: func(_ *MockOutboxRepo, f *MockFeedRepo, _ *MockMessagePublisher) {
				f.On("Upsert", mock.Anything, matchesEntry).Return(errors.New("mongo down")).Once()
			},
			expectedError: "failed to write feed entry",
		},
		{
			name:    "topic failure leaves the message pending",
			message: msg,
			setupMocks: func(_ *MockOutboxRepo, f *MockFeedRepo, p *MockMessagePublisher) {
				f.On("Upsert", mock.Anything, matchesEntry).Return(nil).Once()
				p.On("Publish", mock.Anything, entry.AccountID.String(), matchesEntry).Return(errors.New("broker down")).Once()
			},
			expectedError: "failed to publish ledger event",
		},
		{
			name:    "status update failure is reported",
			message: msg,
			setupMocks: func(o *MockOutboxRepo, f *MockFeedRepo, p *MockMessagePublisher) {
				f.On("Upsert", mock.Anything, matchesEntry).Return(nil).Once()
				p.On("Publish", mock.Anything, entry.AccountID.String(), matchesEntry).Return(nil).Once()
				o.On("UpdateStatus", mock.Anything, int64(7), shared.OutboxStatusProcessed).Return(errors.New("db error")).Once()
			},
			expectedError: "failed to mark outbox 7 as PROCESSED",
		},
		{
			name:    "undecodable payload is marked failed",
			message: &outbox.Message{ID: 9, Payload: []byte("{not json")},
			setupMocks: func(o *MockOutboxRepo, _ *MockFeedRepo, _ *MockMessagePublisher) {
				o.On("UpdateStatus", mock.Anything, int64(9), shared.OutboxStatusFailedToPublish).Return(nil).Once()
			},
			expectedError: "undecodable outbox payload",
			undecodable:   true,
			wantStatus:    shared.OutboxStatusFailedToPublish,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outboxRepo := &MockOutboxRepo{}
			feedRepo := &MockFeedRepo{}
			producer := &MockMessagePublisher{}
			tt.setupMocks(outboxRepo, feedRepo, producer)

			publisher := NewLedgerPublisher(outboxRepo, feedRepo, producer, testLogger())
			err := publisher.Publish(context.Background(), tt.message)

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				assert.Equal(t, tt.undecodable, errors.Is(err, errUndecodable))
			} else {
				assert.NoError(t, err)
			}
			if tt.wantStatus != "" {
				assert.Equal(t, tt.wantStatus, tt.message.Status)
			}
			outboxRepo.AssertExpectations(t)
			feedRepo.AssertExpectations(t)
			producer.AssertExpectations(t)
		})
	}
}

func TestLedgerPublisher_FeedOnly(t *testing.T) {
	msg, _ := newMessage(t, 3)
	outboxRepo := &MockOutboxRepo{}
	feedRepo := &MockFeedRepo{}
	feedRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()
	outboxRepo.On("UpdateStatus", mock.Anything, int64(3), shared.OutboxStatusProcessed).Return(nil).Once()

	publisher := NewLedgerPublisher(outboxRepo, feedRepo, nil, testLogger())
	require.NoError(t, publisher.Publish(context.Background(), msg))

	outboxRepo.AssertExpectations(t)
	feedRepo.AssertExpectations(t)
}
