package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTaskProcessor struct {
	mock.Mock
}

func (m *MockTaskProcessor) Process(ctx context.Context, req *task.Request) (*task.Task, error) {
	args := m.Called(ctx, req)
	if t, ok := args.Get(0).(*task.Task); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockDeadLetterPublisher struct {
	mock.Mock
}

func (m *MockDeadLetterPublisher) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	args := m.Called(ctx, key, value, reason)
	return args.Error(0)
}

func (m *MockDeadLetterPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestTaskRequestHandler_HandleMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	request := task.Request{
		RequestID:     uuid.New(),
		AccountID:     uuid.New(),
		Kind:          task.KindWithdrawal,
		Amount:        decimal.NewFromInt(40),
		CorrelationID: "corr-1",
		Timestamp:     time.Now().UTC(),
	}
	validJSON, err := json.Marshal(request)
	require.NoError(t, err)

	matchesRequest := mock.MatchedBy(func(req *task.Request) bool {
		return req.RequestID == request.RequestID && req.Amount.Equal(request.Amount)
	})

	tests := []struct {
		name          string
		value         []byte
		setupMocks    func(p *MockTaskProcessor, d *MockDeadLetterPublisher)
		expectedError string
	}{
		{
			name:  "creates the task",
			value: validJSON,
			setupMocks: func(p *MockTaskProcessor, _ *MockDeadLetterPublisher) {
				p.On("Process", mock.Anything, matchesRequest).Return(&task.Task{ID: request.RequestID}, nil)
			},
		},
		{
			name:  "transient failure is retried",
			value: validJSON,
			setupMocks: func(p *MockTaskProcessor, _ *MockDeadLetterPublisher) {
				p.On("Process", mock.Anything, matchesRequest).Return(nil, errors.New("connection reset"))
			},
			expectedError: "processing task request",
		},
		{
			name:  "business rejection goes to the DLQ",
			value: validJSON,
			setupMocks: func(p *MockTaskProcessor, d *MockDeadLetterPublisher) {
				p.On("Process", mock.Anything, matchesRequest).
					Return(nil, fmt.Errorf("withdrawal of 40: %w", shared.ErrInsufficientFunds))
				d.On("PublishToDLQ", mock.Anything, "test-key", validJSON, mock.MatchedBy(func(reason string) bool {
					return reason == "withdrawal of 40: insufficient funds"
				})).Return(nil)
			},
		},
		{
			name:  "business rejection is retried when the DLQ is down",
			value: validJSON,
			setupMocks: func(p *MockTaskProcessor, d *MockDeadLetterPublisher) {
				p.On("Process", mock.Anything, matchesRequest).
					Return(nil, fmt.Errorf("%w: unknown task kind", shared.ErrInvalidRequest))
				d.On("PublishToDLQ", mock.Anything, "test-key", validJSON, mock.Anything).Return(errors.New("dlq error"))
			},
			expectedError: "processing task request",
		},
		{
			name:  "unmarshal error with successful DLQ publish",
			value: []byte("invalid json"),
			setupMocks: func(_ *MockTaskProcessor, d *MockDeadLetterPublisher) {
				d.On("PublishToDLQ", mock.Anything, "test-key", []byte("invalid json"), mock.Anything).Return(nil)
			},
		},
		{
			name:  "unmarshal error with DLQ publish failure",
			value: []byte("invalid json"),
			setupMocks: func(_ *MockTaskProcessor, d *MockDeadLetterPublisher) {
				d.On("PublishToDLQ", mock.Anything, "test-key", []byte("invalid json"), mock.Anything).Return(errors.New("dlq error"))
			},
			expectedError: "failed to unmarshal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &MockTaskProcessor{}
			dlq := &MockDeadLetterPublisher{}
			tt.setupMocks(processor, dlq)

			handler := NewTaskRequestHandler(logger, processor, dlq)
			err := handler.HandleMessage(context.Background(), []byte("test-key"), tt.value)

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			processor.AssertExpectations(t)
			dlq.AssertExpectations(t)
		})
	}
}

func TestTaskRequestHandler_WithoutDLQ(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewTaskRequestHandler(logger, &MockTaskProcessor{}, nil)

	err := handler.HandleMessage(context.Background(), []byte("k"), []byte("{"))
	assert.Error(t, err)
}
