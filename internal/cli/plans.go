package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPlansCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List the investment plans, cheapest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := runtimeFrom(cmd).Plans.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list plans: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, p := range plans {
				fmt.Fprintf(out, "%s min_capital=%s daily_return=%s-%s commission_pct=%s duration_days=%d\n",
					p.Name, p.MinCapital, p.MinDailyReturn, p.MaxDailyReturn, p.MonthlyCommissionPct, p.DurationDays)
			}
			if len(plans) == 0 {
				fmt.Fprintln(out, "no plans configured")
			}
			return nil
		},
	}
}
