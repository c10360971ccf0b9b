/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/papertrade/apiserver/config"
	"github.com/papertrade/apiserver/internal/db"
	"github.com/papertrade/apiserver/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfg          config.Config
	flushLogger  func()
	logLevelFlag string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "papertrade",
	Short: "Paper trading ledger and portfolio server",
	Long: `papertrade keeps a per-user ledger of simulated stock trades, values
portfolios against live quotes and serves both over a JSON API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.LoadConfig()
		level := cfg.LogLevel
		if logLevelFlag != "" {
			level = logLevelFlag
		}

		_, cleanup, err := logging.Initialize(level)
		if err != nil {
			return err
		}
		flushLogger = cleanup
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if flushLogger != nil {
			flushLogger()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
}

// openDatabase connects to the configured database, applying migrations when
// the driver is SQLite or DB_AUTO_MIGRATE is set.
func openDatabase(ctx context.Context) (*sql.DB, error) {
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate || cfg.Database.Driver == config.DriverSQLite {
		if err := db.MigrateUp(conn, cfg.Database.Driver); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return conn, nil
}
