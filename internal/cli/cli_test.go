package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/capital-cycle-ledger/internal/domain/plan"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/settings"
	"github.com/capital-cycle-ledger/internal/settlement/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPassRunner struct {
	mock.Mock
}

func (m *MockPassRunner) RunRecycle(ctx context.Context) (service.PassResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.PassResult), args.Error(1)
}

func (m *MockPassRunner) RunCommissionPass(ctx context.Context) (service.PassResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.PassResult), args.Error(1)
}

func (m *MockPassRunner) RunAccrualPass(ctx context.Context) (service.PassResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.PassResult), args.Error(1)
}

type MockPoolAdmin struct {
	mock.Mock
}

func (m *MockPoolAdmin) Import(ctx context.Context, actor uuid.UUID, addresses []string) (int64, error) {
	args := m.Called(ctx, actor, addresses)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPoolAdmin) Inventory(ctx context.Context) (pool.Inventory, error) {
	args := m.Called(ctx)
	return args.Get(0).(pool.Inventory), args.Error(1)
}

type MockPlanCatalog struct {
	mock.Mock
}

func (m *MockPlanCatalog) List(ctx context.Context) ([]*plan.Plan, error) {
	args := m.Called(ctx)
	plans, _ := args.Get(0).([]*plan.Plan)
	return plans, args.Error(1)
}

type MockSettingsStore struct {
	mock.Mock
}

func (m *MockSettingsStore) GetDecimal(ctx context.Context, key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, key, fallback)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockSettingsStore) SetDecimal(ctx context.Context, key string, value decimal.Decimal) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

type fakeRuntime struct {
	passes   *MockPassRunner
	pool     *MockPoolAdmin
	plans    *MockPlanCatalog
	settings *MockSettingsStore
	opened   int
	closed   int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{passes: new(MockPassRunner), pool: new(MockPoolAdmin), plans: new(MockPlanCatalog), settings: new(MockSettingsStore)}
}

func (f *fakeRuntime) open(context.Context) (*Runtime, error) {
	f.opened++
	return &Runtime{
		Passes:                f.passes,
		Pool:                  f.pool,
		Plans:                 f.plans,
		Settings:              f.settings,
		DefaultCommissionRate: decimal.RequireFromString("0.1"),
		Close:                 func() { f.closed++ },
	}, nil
}

func run(t *testing.T, open Opener, stdin string, args ...string) (string, error) {
	t.Helper()
	root, closeRuntime := NewRootCommand(open)
	defer closeRuntime()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestJobs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		setupMocks func(m *MockPassRunner)
		wantOut    string
		wantErr    string
	}{
		{
			name: "recycle",
			args: []string{"jobs", "recycle"},
			setupMocks: func(m *MockPassRunner) {
				m.On("RunRecycle", mock.Anything).Return(service.PassResult{Pass: "recycle", Processed: 4, Applied: 4}, nil).Once()
			},
			wantOut: "pass=recycle processed=4 applied=4 skipped=0 failed=0",
		},
		{
			name: "commission with failed accounts",
			args: []string{"jobs", "commission"},
			setupMocks: func(m *MockPassRunner) {
				m.On("RunCommissionPass", mock.Anything).
					Return(service.PassResult{Pass: "commission", Processed: 3, Applied: 1, Skipped: 1, Failed: 1}, nil).Once()
			},
			wantOut: "pass=commission processed=3 applied=1 skipped=1 failed=1",
			wantErr: "commission pass: 1 accounts failed",
		},
		{
			name: "accrue aborts",
			args: []string{"jobs", "accrue"},
			setupMocks: func(m *MockPassRunner) {
				m.On("RunAccrualPass", mock.Anything).Return(service.PassResult{}, errors.New("db down")).Once()
			},
			wantErr: "accrue pass failed: db down",
		},
		{
			name:    "unknown pass",
			args:    []string{"jobs", "rebalance"},
			wantErr: "unknown command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			if tt.setupMocks != nil {
				tt.setupMocks(rt.passes)
			}

			out, err := run(t, rt.open, "", tt.args...)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tt.wantOut != "" {
				assert.Contains(t, out, tt.wantOut)
			}
			assert.Equal(t, rt.opened, rt.closed)
			rt.passes.AssertExpectations(t)
		})
	}
}

func TestPoolImport(t *testing.T) {
	actor := uuid.New()
	file := filepath.Join(t.TempDir(), "addresses.txt")
	require.NoError(t, os.WriteFile(file, []byte("# batch 7\nTQ1\n\n  TQ2  \nTQ1\n"), 0o600))

	t.Run("from file", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.pool.On("Import", mock.Anything, actor, []string{"TQ1", "TQ2", "TQ1"}).Return(int64(2), nil).Once()

		out, err := run(t, rt.open, "", "pool", "import", file, "--actor", actor.String())

		require.NoError(t, err)
		assert.Contains(t, out, "imported 2 of 3 addresses")
		assert.Equal(t, 1, rt.closed)
		rt.pool.AssertExpectations(t)
	})

	t.Run("from stdin", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.pool.On("Import", mock.Anything, uuid.Nil, []string{"TQ9"}).Return(int64(1), nil).Once()

		out, err := run(t, rt.open, "TQ9\n", "pool", "import", "-")

		require.NoError(t, err)
		assert.Contains(t, out, "imported 1 of 1 addresses")
		rt.pool.AssertExpectations(t)
	})

	t.Run("empty input", func(t *testing.T) {
		rt := newFakeRuntime()
		_, err := run(t, rt.open, "\n# nothing\n", "pool", "import", "-")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no addresses found")
	})

	t.Run("bad actor", func(t *testing.T) {
		rt := newFakeRuntime()
		_, err := run(t, rt.open, "", "pool", "import", file, "--actor", "root")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --actor")
	})

	t.Run("missing file", func(t *testing.T) {
		rt := newFakeRuntime()
		_, err := run(t, rt.open, "", "pool", "import", filepath.Join(t.TempDir(), "none.txt"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open address file")
	})
}

func TestPoolInventory(t *testing.T) {
	rt := newFakeRuntime()
	rt.pool.On("Inventory", mock.Anything).Return(pool.Inventory{Available: 12, Reserved: 3, Used: 80}, nil).Once()

	out, err := run(t, rt.open, "", "pool", "inventory")

	require.NoError(t, err)
	assert.Contains(t, out, "available=12 reserved=3 used=80")
}

func TestSettings(t *testing.T) {
	t.Run("show falls back to the configured default", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.settings.On("GetDecimal", mock.Anything, settings.KeyReferralCommissionRate, decimal.RequireFromString("0.1")).
			Return(decimal.RequireFromString("0.1"), nil).Once()

		out, err := run(t, rt.open, "", "settings", "commission-rate")

		require.NoError(t, err)
		assert.Equal(t, "0.1\n", out)
	})

	t.Run("set", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.settings.On("SetDecimal", mock.Anything, settings.KeyReferralCommissionRate, mock.MatchedBy(func(d decimal.Decimal) bool {
			return d.Equal(decimal.RequireFromString("0.15"))
		})).Return(nil).Once()

		out, err := run(t, rt.open, "", "settings", "set-commission-rate", "0.15")

		require.NoError(t, err)
		assert.Contains(t, out, "referral commission rate set to 0.15")
		rt.settings.AssertExpectations(t)
	})

	for _, bad := range []string{"1.5", "-0.1", "ten"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			rt := newFakeRuntime()
			_, err := run(t, rt.open, "", "settings", "set-commission-rate", "--", bad)
			require.Error(t, err)
			rt.settings.AssertNotCalled(t, "SetDecimal", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestConnectFailure(t *testing.T) {
	open := func(context.Context) (*Runtime, error) { return nil, errors.New("connection refused") }

	_, err := run(t, open, "", "pool", "inventory")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect: connection refused")
}

func TestExecute_ClosesRuntime(t *testing.T) {
	rt := newFakeRuntime()
	rt.pool.On("Inventory", mock.Anything).Return(pool.Inventory{}, errors.New("db down")).Once()

	err := Execute(context.Background(), rt.open, []string{"pool", "inventory"})

	require.Error(t, err)
	assert.Equal(t, 1, rt.opened)
	assert.Equal(t, 1, rt.closed)
}

func TestPlans(t *testing.T) {
	t.Run("lists plans", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.plans.On("List", mock.Anything).Return([]*plan.Plan{{
			Name:                 "silver",
			MinCapital:           decimal.NewFromInt(100),
			MinDailyReturn:       decimal.RequireFromString("0.005"),
			MaxDailyReturn:       decimal.RequireFromString("0.01"),
			MonthlyCommissionPct: decimal.NewFromInt(3),
			DurationDays:         30,
		}}, nil).Once()

		out, err := run(t, rt.open, "", "plans")
		require.NoError(t, err)
		assert.Contains(t, out, "silver min_capital=100 daily_return=0.005-0.01 commission_pct=3 duration_days=30")
		rt.plans.AssertExpectations(t)
	})

	t.Run("empty catalog", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.plans.On("List", mock.Anything).Return(nil, nil).Once()

		out, err := run(t, rt.open, "", "plans")
		require.NoError(t, err)
		assert.Contains(t, out, "no plans configured")
	})

	t.Run("store failure", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.plans.On("List", mock.Anything).Return(nil, errors.New("db down")).Once()

		_, err := run(t, rt.open, "", "plans")
		assert.EqualError(t, err, "failed to list plans: db down")
		assert.Equal(t, 1, rt.closed)
	})
}
