package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steelburn/candidacy-sub001/internal/shared/config"
	"github.com/steelburn/candidacy-sub001/internal/shared/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "failoverctl",
		Short:         "Inspect and operate the AI provider failover service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			logging.Setup(level, "text")
			return nil
		},
	}
	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newResolveCmd(),
		newGenerateCmd(),
		newParseCmd(),
		newProvidersCmd(),
		newReloadCmd(),
		newLogsCmd(),
		newStatsCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
