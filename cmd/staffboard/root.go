package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/staffboard/internal/config"
	"github.com/example/staffboard/internal/logging"
)

type rootOptions struct {
	configFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "staffboard",
		Short:         "Staff presence board and department calendar",
		Long:          `Mirrors the employee directory from the upstream backend, derives live presence, serves department events and keeps the counter sales ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "YAML configuration file; STAFFBOARD_* variables override it")

	root.AddCommand(
		newServeCommand(opts),
		newSyncCommand(opts),
		newMigrateCommand(opts),
		newStatusCommand(opts),
		newSalesCommand(opts),
		newHashKeyCommand(),
	)
	return root
}

// load reads the configuration and builds the logger. Logs go to stderr so
// command output on stdout stays machine readable.
func (o *rootOptions) load(cmd *cobra.Command, required []string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.LoadOptions{File: o.configFile, Required: required})
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logging: %w", err)
	}
	return cfg, logger, nil
}
