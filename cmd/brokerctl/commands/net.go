package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
)

func netCmd() *cobra.Command {
	var b domain.CommissionBreakdown

	cmd := &cobra.Command{
		Use:   "net",
		Short: "Compute net commission from gross, splits and fees",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := domain.NewCommission("", b, false)
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Net commission: %.2f\n", c.NetCommission)
			return nil
		},
	}

	cmd.Flags().Float64Var(&b.GrossCommission, "gross", 0, "gross commission")
	cmd.Flags().Float64Var(&b.BrokerSplit, "broker", 0, "broker split")
	cmd.Flags().Float64Var(&b.TeamSplit, "team", 0, "team split")
	cmd.Flags().Float64Var(&b.AdminFees, "admin", 0, "admin fees")
	return cmd
}

func progressCmd() *cobra.Command {
	var current, target float64

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Percentage of a target reached, clamped to 0-100",
		RunE: func(cmd *cobra.Command, args []string) error {
			pct := domain.RoundedProgress(current, target)
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"current": current,
					"target":  target,
					"percent": pct,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Progress: %d%%\n", pct)
			return nil
		},
	}

	cmd.Flags().Float64Var(&current, "current", 0, "amount reached so far")
	cmd.Flags().Float64Var(&target, "target", 0, "target amount")
	return cmd
}
