package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/flower-auction/internal/adapter/storage"
	"github.com/rl1809/flower-auction/internal/config"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded schema migrations to the configured SQL store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.Store.Driver == config.DriverMemory {
				return fmt.Errorf("store driver %q has no schema", cfg.Store.Driver)
			}
			db, dialect, err := openSQL(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := storage.Migrate(cmd.Context(), db, dialect)
			if err != nil {
				return err
			}
			log.Info("schema up to date", zap.String("driver", cfg.Store.Driver), zap.Int("version", version))
			return nil
		},
	}
}
