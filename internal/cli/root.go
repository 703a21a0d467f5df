// Package cli implements the taskgantt command line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tealeaf2/taskgantt/internal/config"
	"github.com/tealeaf2/taskgantt/internal/db"
	"github.com/tealeaf2/taskgantt/internal/logging"
	"github.com/tealeaf2/taskgantt/internal/models"
)

var (
	cfgFile     string
	jsonOutput  bool
	jsonlOutput bool
	logLevel    string
	noProgress  bool

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "taskgantt",
	Short: "Dependency analysis for ClickUp task trees",
	Long: `taskgantt fetches tasks from ClickUp, propagates statuses through
parent/child and dependency relations, and reports dependency chains,
risk scores, and blockers over the stored snapshot.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		appConfig = cfg

		level := cfg.Log.Level
		if logLevel != "" {
			level = logLevel
		}
		logging.Setup(level, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.taskgantt/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&jsonlOutput, "jsonl", false, "output as JSON lines")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress output")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the configuration loaded for this invocation.
func GetConfig() *config.Config {
	if appConfig == nil {
		appConfig = config.DefaultConfig()
	}
	return appConfig
}

func openDatabase() (*db.DB, error) {
	cfg := GetConfig()
	database, err := db.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", cfg.DB.Path, err)
	}
	if _, err := database.MigrateUp(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}

func loadStoredTasks(ctx context.Context, database *db.DB) ([]models.Task, error) {
	tasks, err := db.NewTaskRepository(database).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored tasks: %w", err)
	}
	return tasks, nil
}
