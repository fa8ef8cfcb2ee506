package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	amqp "github.com/rabbitmq/amqp091-go"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop processes deliveries until jobsChan is closed
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	logger := w.logger.With(slog.String("worker_name", fmt.Sprintf("%s-%d", w.workerID, workerNum)))

	for delivery := range w.jobsChan {
		w.handleDelivery(ctx, delivery, logger)
	}
}

// handleDelivery processes one launch request and settles its delivery
func (w *Worker) handleDelivery(ctx context.Context, delivery amqp.Delivery, logger *slog.Logger) {
	logger = logger.With(slog.Uint64("delivery_tag", delivery.DeliveryTag))

	err := w.processJob(ctx, delivery.Body, logger)
	if err == nil {
		if ackErr := delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message", slog.Any("error", ackErr))
		}
		return
	}

	requeue := shouldRequeue(err)
	logger.Error("Launch request failed",
		slog.Any("error", err),
		slog.Bool("requeue", requeue),
	)
	if nackErr := delivery.Nack(false, requeue); nackErr != nil {
		logger.Error("Failed to NACK message", slog.Any("error", nackErr))
	}
}

// shouldRequeue reports whether a failed launch request is worth redelivering.
// Only transient store faults are; a malformed request fails the same way twice.
func shouldRequeue(err error) bool {
	if errors.Is(err, ErrMalformedRequest) || batch.IsUsageError(err) {
		return false
	}

	var retryableErr *batch.RetryableError
	return errors.As(err, &retryableErr)
}
