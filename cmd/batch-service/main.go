package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/batch-scheduler/internal/api/handler"
	"github.com/cuongbtq/batch-scheduler/internal/api/router"
	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/internal/bootstrap"
	"github.com/cuongbtq/batch-scheduler/internal/config"
	"github.com/cuongbtq/batch-scheduler/internal/launcher"
	"github.com/cuongbtq/batch-scheduler/internal/metrics"
	"github.com/cuongbtq/batch-scheduler/internal/person"
	"github.com/cuongbtq/batch-scheduler/internal/scheduler"
	"github.com/cuongbtq/batch-scheduler/internal/storage/postgres"
	"github.com/cuongbtq/batch-scheduler/internal/worker"
	"github.com/cuongbtq/batch-scheduler/shared/postgresql"
	"github.com/cuongbtq/batch-scheduler/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() (err error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("BATCH_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/batch-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateServiceConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if !cfg.Server.Enabled && !cfg.Scheduler.Enabled && !cfg.Worker.Enabled {
		return errors.New("invalid config: at least one of server, scheduler and worker must be enabled")
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { err = multierr.Append(err, appLogger.Close()) }()

	appLogger.Info("Starting batch service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := bootstrap.InitPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if cfg.Database.AutoMigrate {
		if err := bootstrap.Migrate(context.Background(), dbClient.GetDB(), appLogger.Logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	store := postgres.NewStore(dbClient.GetDB(), appLogger.Logger)
	registry, err := bootstrap.NewRegistry(cfg, person.NewRepository(dbClient.GetDB(), appLogger.Logger), appLogger.Logger)
	if err != nil {
		return err
	}

	jobLauncher := launcher.New(registry, store,
		launcher.WithLogger(appLogger.Logger),
		launcher.WithMetrics(metrics.NewRecorder(prometheus.DefaultRegisterer)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.Enabled {
		startServer(gctx, g, cfg, appLogger.Logger, registry, jobLauncher, store, dbClient)
	}

	if cfg.Scheduler.Enabled {
		if err := startScheduler(gctx, g, cfg, appLogger.Logger, registry, store, jobLauncher); err != nil {
			return err
		}
	}

	if cfg.Worker.Enabled {
		rabbitClient, rabbitErr := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if rabbitErr != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", rabbitErr)
		}
		defer func() { err = multierr.Append(err, rabbitClient.Close()) }()

		startWorker(gctx, g, cfg, appLogger.Logger, jobLauncher, rabbitClient)
	}

	appLogger.Info("Batch service is running",
		slog.Bool("server", cfg.Server.Enabled),
		slog.Bool("scheduler", cfg.Scheduler.Enabled),
		slog.Bool("worker", cfg.Worker.Enabled),
	)

	if err := g.Wait(); err != nil {
		appLogger.Error("Batch service stopped with error", slog.Any("error", err))
		return err
	}

	appLogger.Info("Batch service shutdown complete")
	return nil
}

// startServer serves the control API until ctx is done
func startServer(ctx context.Context, g *errgroup.Group, cfg *config.Config, logger *slog.Logger,
	registry *batch.Registry, jobLauncher *launcher.Launcher, store *postgres.Store, dbClient *postgresql.Client) {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:   logger,
		Registry: registry,
		Launcher: jobLauncher,
		Store:    store,
	}, router.Options{HealthCheck: dbClient.HealthCheck})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		logger.Info("Server shutdown complete")
		return nil
	})
}

// startScheduler fires the configured job until ctx is done
func startScheduler(ctx context.Context, g *errgroup.Group, cfg *config.Config, logger *slog.Logger,
	registry *batch.Registry, store scheduler.SequenceSource, jobLauncher *launcher.Launcher) error {
	if _, ok := registry.Get(cfg.Scheduler.JobName); !ok {
		return fmt.Errorf("invalid config: scheduler job %q is not registered", cfg.Scheduler.JobName)
	}

	trigger, err := scheduler.ParseTrigger(cfg.Scheduler.Cron)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	opts := append(bootstrap.SchedulerOptions(&cfg.Scheduler, store), scheduler.WithLogger(logger))
	sched := scheduler.New(jobLauncher, cfg.Scheduler.JobName, trigger, opts...)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	g.Go(func() error {
		<-ctx.Done()
		sched.Stop()
		return nil
	})
	return nil
}

// startWorker consumes launch requests until ctx is done. In-flight
// executions get ShutdownTimeout to finish.
func startWorker(ctx context.Context, g *errgroup.Group, cfg *config.Config, logger *slog.Logger,
	jobLauncher *launcher.Launcher, rabbitClient *rabbitmq.Client) {
	w := worker.NewWorker(&worker.Config{
		Logger:      logger,
		Runner:      jobLauncher,
		Source:      rabbitClient,
		Concurrency: cfg.Worker.Concurrency,
		JobTimeout:  cfg.Worker.JobTimeout,
	})

	g.Go(func() error {
		done := make(chan error, 1)
		go func() { done <- w.Start(ctx) }()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
		}

		select {
		case err := <-done:
			return err
		case <-time.After(cfg.Worker.ShutdownTimeout):
			return fmt.Errorf("worker did not stop within %s", cfg.Worker.ShutdownTimeout)
		}
	})
}
