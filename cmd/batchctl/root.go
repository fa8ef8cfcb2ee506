package main

import (
	"fmt"
	"os"

	"github.com/cuongbtq/batch-scheduler/internal/bootstrap"
	"github.com/cuongbtq/batch-scheduler/internal/config"
	"github.com/cuongbtq/batch-scheduler/shared/logger"
	"github.com/cuongbtq/batch-scheduler/shared/postgresql"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	defaultConfigPath := os.Getenv("BATCH_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/batch-service/config.yaml"
	}

	c := &cobra.Command{
		Use:              "batchctl",
		Short:            "Launch and inspect batch jobs",
		SilenceUsage:     true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// a missing .env file is fine
			_ = godotenv.Load()
		},
	}
	c.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Path to configuration file")

	c.AddCommand(
		launchCommand(opts),
		statusCommand(opts),
		enqueueCommand(opts),
		migrateCommand(opts),
		jobsCommand(opts),
	)
	return c
}

// app holds what a command builds from the configuration file
type app struct {
	cfg    *config.Config
	logger *logger.Logger
	db     *postgresql.Client
}

// loadApp reads the configuration and builds the logger. Commands log to
// stderr unless a log file is configured; stdout carries their results.
func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &app{cfg: cfg, logger: appLogger}, nil
}

// connect opens the execution store database
func (a *app) connect() error {
	if err := a.cfg.ValidateDatabaseConfig(); err != nil {
		return &exitError{code: exitUsage, err: fmt.Errorf("invalid config: %w", err)}
	}

	db, err := bootstrap.InitPostgreSQL(&a.cfg.Database, a.logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db
	return nil
}

func (a *app) close() error {
	var err error
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
	}
	return multierr.Append(err, a.logger.Close())
}
