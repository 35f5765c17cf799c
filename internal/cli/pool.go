package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newPoolCommand() *cobra.Command {
	poolCmd := &cobra.Command{
		Use:   "pool",
		Short: "Administer the deposit address pool",
		Args:  cobra.NoArgs,
	}

	var actor string
	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import deposit addresses, one per line ('-' reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := uuid.Nil
			if actor != "" {
				id, err := uuid.Parse(actor)
				if err != nil {
					return fmt.Errorf("invalid --actor: %w", err)
				}
				actorID = id
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open address file: %w", err)
				}
				defer f.Close()
				in = f
			}

			addresses, err := readAddresses(in)
			if err != nil {
				return err
			}
			if len(addresses) == 0 {
				return fmt.Errorf("no addresses found in %s", args[0])
			}

			imported, err := runtimeFrom(cmd).Pool.Import(cmd.Context(), actorID, addresses)
			if err != nil {
				return fmt.Errorf("failed to import addresses: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d addresses\n", imported, len(addresses))
			return nil
		},
	}
	importCmd.Flags().StringVar(&actor, "actor", "", "Admin id recorded in the audit trail")

	inventoryCmd := &cobra.Command{
		Use:   "inventory",
		Short: "Show address counts per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := runtimeFrom(cmd).Pool.Inventory(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read inventory: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "available=%d reserved=%d used=%d\n", inv.Available, inv.Reserved, inv.Used)
			return nil
		},
	}

	poolCmd.AddCommand(importCmd, inventoryCmd)
	return poolCmd
}

// readAddresses returns the non-blank lines of r. Lines starting with # are comments.
func readAddresses(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read addresses: %w", err)
	}
	return out, nil
}
