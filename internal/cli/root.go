// Package cli implements ledgerctl, the operator tool for one-off batch passes,
// pool administration, plan listing and referral settings.
package cli

import (
	"context"
	"fmt"

	"github.com/capital-cycle-ledger/internal/domain/plan"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/settlement/scheduler"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// PoolAdmin is the subset of the pool service the CLI drives.
type PoolAdmin interface {
	Import(ctx context.Context, actor uuid.UUID, addresses []string) (int64, error)
	Inventory(ctx context.Context) (pool.Inventory, error)
}

// PlanCatalog lists the plan reference data.
type PlanCatalog interface {
	List(ctx context.Context) ([]*plan.Plan, error)
}

// SettingsStore reads and writes admin settings.
type SettingsStore interface {
	GetDecimal(ctx context.Context, key string, fallback decimal.Decimal) (decimal.Decimal, error)
	SetDecimal(ctx context.Context, key string, value decimal.Decimal) error
}

// Runtime is what a command needs once connected to the stores.
type Runtime struct {
	Passes                scheduler.PassRunner
	Pool                  PoolAdmin
	Plans                 PlanCatalog
	Settings              SettingsStore
	DefaultCommissionRate decimal.Decimal
	Close                 func()
}

// Opener connects to the stores. It runs once per command invocation.
type Opener func(ctx context.Context) (*Runtime, error)

type contextKey struct{}

// NewRootCommand builds the ledgerctl command tree on top of open. The runtime
// is opened lazily by the command that needs it; closeRuntime releases it.
func NewRootCommand(open Opener) (root *cobra.Command, closeRuntime func()) {
	var opened *Runtime
	root = &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the capital cycle settlement engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			opened = rt
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, rt))
			return nil
		},
	}

	root.AddCommand(newJobsCommand(), newPoolCommand(), newPlansCommand(), newSettingsCommand())
	return root, func() {
		if opened != nil && opened.Close != nil {
			opened.Close()
		}
	}
}

// Execute runs ledgerctl with args and releases the runtime afterwards.
func Execute(ctx context.Context, open Opener, args []string) error {
	root, closeRuntime := NewRootCommand(open)
	defer closeRuntime()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func runtimeFrom(cmd *cobra.Command) *Runtime {
	rt, _ := cmd.Context().Value(contextKey{}).(*Runtime)
	return rt
}
