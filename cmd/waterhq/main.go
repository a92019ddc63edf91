package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/dukerupert/waterhq/internal/config"
	"github.com/dukerupert/waterhq/internal/database"
	"github.com/dukerupert/waterhq/internal/logging"
	"github.com/spf13/cobra"
)

var (
	envFile    string
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "waterhq",
	Short:         "Household shower scheduler",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile, configFile)
		if err != nil {
			return err
		}
		logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment when present")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, toml or json)")

	rootCmd.AddCommand(serveCmd, vapidCmd, tokenCmd, graceCmd, allowlistCmd, backupCmd)
}

// openDB opens the configured database, running migrations.
func openDB() (*sql.DB, error) {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	return db, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
