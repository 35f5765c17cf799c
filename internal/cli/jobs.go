package cli

import (
	"context"
	"fmt"

	"github.com/capital-cycle-ledger/internal/settlement/service"
	"github.com/spf13/cobra"
)

func newJobsCommand() *cobra.Command {
	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Run a scheduled pass once",
		Long: `Run one of the periodic passes immediately. Useful when the worker's
scheduler has the pass disabled and an external cron drives it instead.`,
		Args: cobra.NoArgs,
	}

	passes := []struct {
		use   string
		short string
		run   func(*Runtime) func(context.Context) (service.PassResult, error)
	}{
		{"recycle", "Release reservations older than the reservation timeout",
			func(rt *Runtime) func(context.Context) (service.PassResult, error) { return rt.Passes.RunRecycle }},
		{"commission", "Charge plan commissions that are due",
			func(rt *Runtime) func(context.Context) (service.PassResult, error) { return rt.Passes.RunCommissionPass }},
		{"accrue", "Credit daily plan and passive profit",
			func(rt *Runtime) func(context.Context) (service.PassResult, error) { return rt.Passes.RunAccrualPass }},
	}

	for _, p := range passes {
		p := p
		jobs.AddCommand(&cobra.Command{
			Use:   p.use,
			Short: p.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				result, err := p.run(runtimeFrom(cmd))(cmd.Context())
				if err != nil {
					return fmt.Errorf("%s pass failed: %w", p.use, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pass=%s processed=%d applied=%d skipped=%d failed=%d\n",
					result.Pass, result.Processed, result.Applied, result.Skipped, result.Failed)
				if result.Failed > 0 {
					return fmt.Errorf("%s pass: %d accounts failed", p.use, result.Failed)
				}
				return nil
			},
		})
	}
	return jobs
}
