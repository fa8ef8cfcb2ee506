// Package worker consumes queued launch requests and runs them through the
// launcher on a bounded pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Runner launches a job and blocks until the execution ends
type Runner interface {
	Run(ctx context.Context, jobName string, params batch.JobParameters) (*batch.ExecutionOutcome, error)
}

// Source delivers launch requests. *rabbitmq.Client satisfies it.
type Source interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Cancel(consumerTag string) error
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Runner      Runner
	Source      Source
	Concurrency int
	JobTimeout  time.Duration
}

// Worker represents the launch-request worker
type Worker struct {
	logger      *slog.Logger
	runner      Runner
	source      Source
	concurrency int
	jobTimeout  time.Duration
	workerID    string
	jobsChan    chan amqp.Delivery
	wg          sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Worker{
		logger:      cfg.Logger,
		runner:      cfg.Runner,
		source:      cfg.Source,
		concurrency: concurrency,
		jobTimeout:  cfg.JobTimeout,
		workerID:    "batch-worker-" + uuid.NewString(),
		jobsChan:    make(chan amqp.Delivery),
	}
}

// Start consumes launch requests until ctx is canceled or the delivery
// channel closes, then waits for in-flight executions to finish.
// Executions are not interrupted by ctx; JobTimeout bounds them.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(context.WithoutCancel(ctx))
	w.startMessageDispatcher(ctx, deliveries)

	if ctx.Err() != nil {
		if err := w.source.Cancel(w.workerID); err != nil {
			w.logger.Warn("Failed to cancel consumer", slog.Any("error", err))
		}
	}

	close(w.jobsChan)
	w.wg.Wait()

	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
	return nil
}
