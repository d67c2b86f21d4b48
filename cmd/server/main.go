package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/flower-auction/internal/config"
	"github.com/rl1809/flower-auction/internal/logger"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Flower auction clock and bid placement service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("store", config.DriverSQLite, "store driver: mysql, sqlite or memory")
	flags.String("mysql-dsn", "", "MySQL DSN (parseTime=true required)")
	flags.String("sqlite-path", "", "SQLite database file")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "json", "log format: json or console")

	_ = v.BindPFlag("store.driver", flags.Lookup("store"))
	_ = v.BindPFlag("mysql.dsn", flags.Lookup("mysql-dsn"))
	_ = v.BindPFlag("sqlite.path", flags.Lookup("sqlite-path"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(serveCmd(), migrateCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by every command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
