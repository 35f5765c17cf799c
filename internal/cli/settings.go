package cli

import (
	"fmt"

	"github.com/capital-cycle-ledger/internal/domain/settings"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newSettingsCommand() *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change admin settings",
		Args:  cobra.NoArgs,
	}

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "commission-rate",
		Short: "Show the referral commission rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtimeFrom(cmd)
			rate, err := rt.Settings.GetDecimal(cmd.Context(), settings.KeyReferralCommissionRate, rt.DefaultCommissionRate)
			if err != nil {
				return fmt.Errorf("failed to read commission rate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), rate.String())
			return nil
		},
	}, &cobra.Command{
		Use:   "set-commission-rate RATE",
		Short: "Set the referral commission rate, a fraction between 0 and 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid rate %q: %w", args[0], err)
			}
			if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
				return fmt.Errorf("rate must be between 0 and 1, got %s", rate)
			}
			if err := runtimeFrom(cmd).Settings.SetDecimal(cmd.Context(), settings.KeyReferralCommissionRate, rate); err != nil {
				return fmt.Errorf("failed to store commission rate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "referral commission rate set to %s\n", rate)
			return nil
		},
	})
	return settingsCmd
}
