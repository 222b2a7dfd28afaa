// Package commands implements brokerctl, the operator CLI: commission and
// progress arithmetic, and a one-off stub extraction against the configured
// provider.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/boddenberg/brokerflow-bfa-go/internal/config"
)

var (
	envFile  string
	jsonOut  bool
	cfg      *config.Config
	provider string
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "brokerctl",
		Short:         "BrokerFlow operator tools",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := config.LoadDotEnv(envFile); err != nil {
					return err
				}
			}
			cfg = config.Load()
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "print JSON instead of text")

	root.AddCommand(netCmd(), progressCmd(), extractCmd())
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}
