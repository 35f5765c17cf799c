package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/capital-cycle-ledger/internal/domain/audit"
	"github.com/capital-cycle-ledger/internal/domain/cycle"
	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/task"
	settlement "github.com/capital-cycle-ledger/internal/settlement/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTaskRequestService struct {
	mock.Mock
}

func (m *MockTaskRequestService) Submit(ctx context.Context, req *task.Request, idempotencyKey string) (uuid.UUID, *task.Task, error) {
	args := m.Called(ctx, req, idempotencyKey)
	existing, _ := args.Get(1).(*task.Task)
	return args.Get(0).(uuid.UUID), existing, args.Error(2)
}

type MockTaskQueryService struct {
	mock.Mock
}

func (m *MockTaskQueryService) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*task.Task)
	return t, args.Error(1)
}

func (m *MockTaskQueryService) ListTasks(ctx context.Context, accountID uuid.UUID, status task.Status, limit, offset int) ([]*task.Task, error) {
	args := m.Called(ctx, accountID, status, limit, offset)
	tasks, _ := args.Get(0).([]*task.Task)
	return tasks, args.Error(1)
}

func (m *MockTaskQueryService) Reserve(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*pool.Address, error) {
	args := m.Called(ctx, accountID, amount)
	a, _ := args.Get(0).(*pool.Address)
	return a, args.Error(1)
}

func (m *MockTaskQueryService) Reinvest(ctx context.Context, accountID uuid.UUID) (*ledger.Entry, error) {
	args := m.Called(ctx, accountID)
	e, _ := args.Get(0).(*ledger.Entry)
	return e, args.Error(1)
}

func (m *MockTaskQueryService) CycleProgress(ctx context.Context, accountID uuid.UUID) (cycle.Progress, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(cycle.Progress), args.Error(1)
}

type MockReviewService struct {
	mock.Mock
}

func (m *MockReviewService) Approve(ctx context.Context, in settlement.ApproveInput) (*task.Task, error) {
	args := m.Called(ctx, in)
	t, _ := args.Get(0).(*task.Task)
	return t, args.Error(1)
}

func (m *MockReviewService) Reject(ctx context.Context, taskID uuid.UUID, reviewer task.Reviewer, reason string) (*task.Task, error) {
	args := m.Called(ctx, taskID, reviewer, reason)
	t, _ := args.Get(0).(*task.Task)
	return t, args.Error(1)
}

type MockPoolAdminService struct {
	mock.Mock
}

func (m *MockPoolAdminService) Import(ctx context.Context, actor uuid.UUID, addresses []string) (int64, error) {
	args := m.Called(ctx, actor, addresses)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPoolAdminService) Inventory(ctx context.Context) (pool.Inventory, error) {
	args := m.Called(ctx)
	return args.Get(0).(pool.Inventory), args.Error(1)
}

func (m *MockPoolAdminService) Release(ctx context.Context, actor uuid.UUID, addressID uuid.UUID) (*pool.Address, error) {
	args := m.Called(ctx, actor, addressID)
	a, _ := args.Get(0).(*pool.Address)
	return a, args.Error(1)
}

func (m *MockPoolAdminService) DeleteOrRelease(ctx context.Context, actor uuid.UUID, addressID uuid.UUID, remove bool) ([]*task.Task, error) {
	args := m.Called(ctx, actor, addressID, remove)
	tasks, _ := args.Get(0).([]*task.Task)
	return tasks, args.Error(1)
}

type MockActivityService struct {
	mock.Mock
}

func (m *MockActivityService) AccountActivity(ctx context.Context, accountID uuid.UUID, page, perPage int) ([]*ledger.Entry, int64, error) {
	args := m.Called(ctx, accountID, page, perPage)
	entries, _ := args.Get(0).([]*ledger.Entry)
	return entries, args.Get(1).(int64), args.Error(2)
}

func (m *MockActivityService) Recent(ctx context.Context, limit int) ([]*ledger.Entry, error) {
	args := m.Called(ctx, limit)
	entries, _ := args.Get(0).([]*ledger.Entry)
	return entries, args.Error(1)
}

func (m *MockActivityService) AuditTrail(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]audit.Event, error) {
	args := m.Called(ctx, entityType, entityID, limit)
	events, _ := args.Get(0).([]audit.Event)
	return events, args.Error(1)
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serve sends body (marshalled unless nil) with the given headers and decodes the envelope.
func serve(t *testing.T, r *gin.Engine, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var resp Response
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	}
	return rr, resp
}

// dataMap re-decodes the untyped data field.
func dataMap(t *testing.T, resp Response) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}
