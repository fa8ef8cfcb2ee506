// Package launcher resolves a launch request to a job instance, enforces the
// identity rules and runs the job's steps in order.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/internal/metrics"
	"github.com/cuongbtq/batch-scheduler/internal/pipeline"
)

// Store is the part of the execution store the launcher needs
type Store interface {
	ResolveInstance(ctx context.Context, jobName string, params batch.JobParameters) (*batch.JobInstance, []*batch.JobExecution, error)
	CanLaunch(ctx context.Context, instance *batch.JobInstance) (batch.LaunchDecision, error)
	RecordStart(ctx context.Context, instance *batch.JobInstance) (*batch.JobExecution, error)
	RecordEnd(ctx context.Context, execution *batch.JobExecution) error
}

// StepRunner executes a single step
type StepRunner interface {
	Execute(ctx context.Context, step batch.StepDefinition) batch.StepExecution
}

// Metrics receives launch outcomes
type Metrics interface {
	IncLaunch(jobName, result string)
	ObserveExecution(execution *batch.JobExecution)
}

type noopMetrics struct{}

func (noopMetrics) IncLaunch(string, string)             {}
func (noopMetrics) ObserveExecution(*batch.JobExecution) {}

// Option configures a Launcher
type Option func(*Launcher)

// WithPipeline replaces the step runner
func WithPipeline(runner StepRunner) Option {
	return func(l *Launcher) { l.steps = runner }
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(l *Launcher) { l.metrics = m }
}

// WithLogger sets the launcher logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) { l.logger = logger }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(l *Launcher) { l.now = now }
}

// Launcher runs jobs synchronously on the caller's goroutine
type Launcher struct {
	registry *batch.Registry
	store    Store
	steps    StepRunner
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
	locks    *keyLock
}

// New creates a Launcher
func New(registry *batch.Registry, store Store, opts ...Option) *Launcher {
	l := &Launcher{
		registry: registry,
		store:    store,
		metrics:  noopMetrics{},
		logger:   slog.Default(),
		now:      time.Now,
		locks:    newKeyLock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.steps == nil {
		l.steps = pipeline.New(pipeline.WithLogger(l.logger), pipeline.WithClock(l.now))
	}
	return l
}

// Run launches jobName with params and blocks until the execution ends.
//
// Usage errors (unknown job, invalid parameters) and store faults are returned
// as errors. Rejections by the identity rules and step failures are not
// errors: they come back in the outcome.
func (l *Launcher) Run(ctx context.Context, jobName string, params batch.JobParameters) (*batch.ExecutionOutcome, error) {
	logger := l.logger.With(
		slog.String("job_name", jobName),
		slog.String("parameters", params.String()),
	)

	if jobName == "" {
		l.metrics.IncLaunch(jobName, metrics.ResultInvalidParameters)
		return nil, batch.NewError(batch.KindInvalidParameters, "", errors.New("job name is required"))
	}

	def, ok := l.registry.Get(jobName)
	if !ok {
		l.metrics.IncLaunch(jobName, metrics.ResultUnknownJob)
		logger.Warn("Launch requested for unknown job")
		return nil, batch.NewError(batch.KindUnknownJob, jobName, nil)
	}

	if err := def.ValidateParameters(params); err != nil {
		l.metrics.IncLaunch(jobName, metrics.ResultInvalidParameters)
		logger.Warn("Launch rejected: invalid parameters", slog.Any("error", err))
		return nil, err
	}

	outcome := &batch.ExecutionOutcome{
		JobName:    jobName,
		Parameters: params,
	}

	execution, err := l.start(ctx, jobName, params)
	if err != nil {
		if batch.IsRejection(err) {
			outcome.Rejection = batch.KindOf(err)
			outcome.Err = err
			l.metrics.IncLaunch(jobName, rejectionResult(outcome.Rejection))
			logger.Info("Job launch rejected", slog.String("reason", outcome.Rejection.String()))
			return outcome, nil
		}
		l.metrics.IncLaunch(jobName, metrics.ResultError)
		logger.Error("Failed to start job execution", slog.Any("error", err))
		return nil, fmt.Errorf("failed to start job execution: %w", err)
	}

	logger = logger.With(
		slog.String("execution_id", execution.ID),
		slog.String("instance_id", execution.InstanceID),
	)
	logger.Info("Job execution started")

	l.execute(ctx, def, execution)
	outcome.Execution = execution
	outcome.Err = execution.Err

	// The end state is recorded even when ctx was canceled mid-run.
	if err := l.store.RecordEnd(context.WithoutCancel(ctx), execution); err != nil {
		l.metrics.IncLaunch(jobName, metrics.ResultError)
		logger.Error("Failed to record job execution end", slog.Any("error", err))
		return outcome, fmt.Errorf("failed to record job execution end: %w", err)
	}

	l.metrics.ObserveExecution(execution)
	if execution.Status == batch.StatusCompleted {
		l.metrics.IncLaunch(jobName, metrics.ResultCompleted)
		logger.Info("Job execution completed",
			slog.Duration("duration", execution.EndTime.Sub(execution.StartTime)),
		)
	} else {
		l.metrics.IncLaunch(jobName, metrics.ResultFailed)
		logger.Error("Job execution failed", slog.String("exit_message", execution.ExitMessage))
	}

	return outcome, nil
}

// start is the critical section of a launch: resolve the instance, check the
// launch rules and record the STARTED execution. Launches of the same
// instance through this launcher are serialised; the store guards against
// other processes.
func (l *Launcher) start(ctx context.Context, jobName string, params batch.JobParameters) (*batch.JobExecution, error) {
	unlock := l.locks.Lock(jobName + "\x00" + params.Key())
	defer unlock()

	instance, _, err := l.store.ResolveInstance(ctx, jobName, params)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve job instance: %w", err)
	}

	decision, err := l.store.CanLaunch(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to check launch rules: %w", err)
	}
	if rejection := decision.Err(jobName); rejection != nil {
		return nil, rejection
	}

	execution, err := l.store.RecordStart(ctx, instance)
	if err != nil {
		if batch.IsRejection(err) {
			return nil, batch.NewError(batch.KindOf(err), jobName, nil)
		}
		return nil, fmt.Errorf("failed to record job execution start: %w", err)
	}
	return execution, nil
}

// execute runs the steps in order and stops at the first failed one
func (l *Launcher) execute(ctx context.Context, def batch.JobDefinition, execution *batch.JobExecution) {
	var failure error

	for _, step := range def.Steps {
		result := l.steps.Execute(ctx, step)
		execution.Steps = append(execution.Steps, result)

		if result.Status == batch.StepFailed {
			failure = batch.NewError(batch.KindStepFailure, def.Name, fmt.Errorf("step %q: %w", step.Name, result.Err))
			break
		}
	}

	if failure != nil {
		execution.Finish(batch.StatusFailed, failure, l.now())
		return
	}
	execution.Finish(batch.StatusCompleted, nil, l.now())
}

func rejectionResult(kind batch.Kind) string {
	if kind == batch.KindDuplicateCompletedRun {
		return metrics.ResultRejectedCompleted
	}
	return metrics.ResultRejectedRunning
}
