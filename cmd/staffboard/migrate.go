package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/staffboard/internal/persistence/sqlite"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd, nil)
			if err != nil {
				return err
			}

			storage, err := sqlite.Open(cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer storage.Close()

			if err := storage.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("database migrated", "dsn", cfg.Database.DSN)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", cfg.Database.DSN)
			return err
		},
	}
}
