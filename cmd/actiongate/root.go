package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/action-gate/config"
	"github.com/upb/action-gate/internal/observability"
	"go.uber.org/zap"
)

// Version is set via ldflags at build time.
var Version = "dev"

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "actiongate",
		Short: "Authorize and dispatch agent actions under per-channel modes",
		Long: `actiongate validates actions requested by automated agents, holds risky
ones for human approval and dispatches the rest through channel adapters.
Each channel runs in safe, test or live mode; only live delivers to the
real destination. Configuration is read from the environment and .env.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL")

	cmd.AddCommand(
		newServeCmd(opts),
		newCatalogCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load reads configuration and builds the logger every command shares
func (o *rootOptions) load(ctx context.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Observability.LogLevel = o.logLevel
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of actiongate",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "actiongate %s\n", Version)
		},
	}
}
