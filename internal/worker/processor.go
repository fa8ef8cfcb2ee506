package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
)

// ErrMalformedRequest is returned for a message that is not a launch request
var ErrMalformedRequest = errors.New("malformed launch request")

// LaunchRequest is the message body of a queued launch
type LaunchRequest struct {
	JobName string   `json:"job_name"`
	Params  []string `json:"params,omitempty"`
}

func decodeRequest(body []byte) (*LaunchRequest, batch.JobParameters, error) {
	var req LaunchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, batch.JobParameters{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if req.JobName == "" {
		return nil, batch.JobParameters{}, fmt.Errorf("%w: job_name is required", ErrMalformedRequest)
	}

	params, err := batch.ParseParameters(req.Params)
	if err != nil {
		return nil, batch.JobParameters{}, err
	}
	return &req, params, nil
}

// processJob runs one launch request. A nil return means the delivery is
// settled: completed, failed and rejected executions are all acknowledged,
// a relaunch being a new request.
func (w *Worker) processJob(ctx context.Context, body []byte, logger *slog.Logger) error {
	req, params, err := decodeRequest(body)
	if err != nil {
		return err
	}

	logger = logger.With(
		slog.String("job_name", req.JobName),
		slog.String("parameters", params.String()),
	)

	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	outcome, err := w.runner.Run(ctx, req.JobName, params)
	switch {
	case err != nil && outcome != nil:
		// The steps ran; only the end record was lost. Redelivery would be
		// rejected as running, so the request is settled here.
		logger.Error("Job execution ran but its end was not recorded", slog.Any("error", err))
		return nil
	case err != nil && batch.IsUsageError(err):
		return err
	case err != nil:
		return batch.NewRetryableError(err)
	case outcome.Rejected():
		logger.Info("Launch request skipped", slog.String("reason", outcome.Rejection.String()))
	case outcome.Succeeded():
		logger.Info("Launch request completed", slog.String("execution_id", outcome.Execution.ID))
	default:
		logger.Warn("Launch request finished with failed execution",
			slog.String("execution_id", outcome.Execution.ID),
			slog.String("exit_message", outcome.Execution.ExitMessage),
		)
	}
	return nil
}
