// Package bootstrap turns configuration into the clients, stores and job
// registry shared by the service and the control CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/internal/config"
	"github.com/cuongbtq/batch-scheduler/internal/jobs"
	"github.com/cuongbtq/batch-scheduler/internal/person"
	"github.com/cuongbtq/batch-scheduler/internal/scheduler"
	"github.com/cuongbtq/batch-scheduler/internal/storage/postgres"
	"github.com/cuongbtq/batch-scheduler/shared/logger"
	"github.com/cuongbtq/batch-scheduler/shared/postgresql"
	"github.com/cuongbtq/batch-scheduler/shared/rabbitmq"
	"github.com/jmoiron/sqlx"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// PostgreSQLConfig maps the database section onto the client configuration
func PostgreSQLConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

// InitPostgreSQL initializes the PostgreSQL database client
func InitPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(PostgreSQLConfig(cfg), logger)
}

// RabbitMQConfig maps the rabbitmq section onto the client configuration
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
	}
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(RabbitMQConfig(cfg), logger)
}

// CSVImportOptions maps the csv_import section onto the job options
func CSVImportOptions(cfg config.CSVImportConfig) jobs.CSVImportOptions {
	return jobs.CSVImportOptions{
		SourcePath:  cfg.SourcePath,
		LinesToSkip: cfg.LinesToSkip,
		Delimiter:   cfg.DelimiterRune(),
		ChunkSize:   cfg.ChunkSize,
	}
}

// NewRegistry registers the shipped jobs, writing imported people to sink
func NewRegistry(cfg *config.Config, sink batch.ItemWriter, logger *slog.Logger) (*batch.Registry, error) {
	registry, err := jobs.NewRegistry(CSVImportOptions(cfg.Jobs.CSVImport), sink, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}
	return registry, nil
}

// SchedulerParams returns how the scheduler builds per-tick parameters
func SchedulerParams(cfg *config.SchedulerConfig) scheduler.ParamsFunc {
	if cfg.ParamMode == config.ParamModeCounter {
		return scheduler.CounterParams(cfg.ParamKey)
	}
	return scheduler.TimestampParams(cfg.ParamKey)
}

// SchedulerOptions returns the scheduler options for cfg. In counter mode the
// tick sequence resumes from the highest value already stored in source, so
// a restarted service never repeats a completed parameter set.
func SchedulerOptions(cfg *config.SchedulerConfig, source scheduler.SequenceSource) []scheduler.Option {
	opts := []scheduler.Option{scheduler.WithParams(SchedulerParams(cfg))}
	if cfg.ParamMode == config.ParamModeCounter {
		opts = append(opts, scheduler.WithSequence(source, cfg.ParamKey))
	}
	return opts
}

// Migrate creates the execution store schema and the person table
func Migrate(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	if err := postgres.NewStore(db, logger).Migrate(ctx); err != nil {
		return err
	}
	if err := person.NewRepository(db, logger).Migrate(ctx); err != nil {
		return err
	}
	logger.Info("Database schema is up to date")
	return nil
}
