package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"go.uber.org/multierr"
)

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the pipeline logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithStepTimeout bounds the execution time of every step. Zero disables it.
func WithStepTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.stepTimeout = d }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline executes a single step: a tasklet, or read -> process -> commit in chunks
type Pipeline struct {
	logger      *slog.Logger
	stepTimeout time.Duration
	now         func() time.Time
}

// New creates a Pipeline
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs the step to completion and reports how it went.
// It never panics on step errors; a failed step carries its cause in Err.
func (p *Pipeline) Execute(ctx context.Context, step batch.StepDefinition) batch.StepExecution {
	result := batch.StepExecution{
		Name:      step.Name,
		StartTime: p.now(),
	}

	if p.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.stepTimeout)
		defer cancel()
	}

	logger := p.logger.With(slog.String("step", step.Name))
	logger.Info("Step started", slog.Bool("tasklet", step.IsTasklet()))

	err := step.Validate()
	switch {
	case err != nil:
		err = fmt.Errorf("invalid step definition: %w", err)
	case step.IsTasklet():
		err = p.runTasklet(ctx, step)
	default:
		err = p.runChunks(ctx, step, &result, logger)
	}

	result.EndTime = p.now()
	if err != nil {
		result.Status = batch.StepFailed
		result.Err = err
		result.ExitMessage = err.Error()
		logger.Error("Step failed",
			slog.Any("error", err),
			slog.Int("read_count", result.ReadCount),
			slog.Int("write_count", result.WriteCount),
			slog.Int("commit_count", result.CommitCount),
		)
		return result
	}

	result.Status = batch.StepFinished
	logger.Info("Step finished",
		slog.Int("read_count", result.ReadCount),
		slog.Int("filter_count", result.FilterCount),
		slog.Int("write_count", result.WriteCount),
		slog.Int("commit_count", result.CommitCount),
		slog.Duration("duration", result.EndTime.Sub(result.StartTime)),
	)
	return result
}

// runTasklet invokes the tasklet until it reports Finished
func (p *Pipeline) runTasklet(ctx context.Context, step batch.StepDefinition) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("tasklet canceled: %w", err)
		}

		status, err := step.Tasklet.Execute(ctx)
		if err != nil {
			return fmt.Errorf("tasklet failed: %w", err)
		}
		if status == batch.Finished {
			return nil
		}
	}
}

// runChunks reads, processes and commits items until the reader is exhausted
func (p *Pipeline) runChunks(ctx context.Context, step batch.StepDefinition, result *batch.StepExecution, logger *slog.Logger) (err error) {
	if err := step.Reader.Open(ctx); err != nil {
		return fmt.Errorf("failed to open reader: %w", err)
	}
	defer func() {
		if closeErr := step.Reader.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to close reader: %w", closeErr))
		}
	}()

	chunk := make([]any, 0, step.ChunkSize)
	for {
		// Cancellation is honoured between chunks only.
		if len(chunk) == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("step canceled: %w", err)
			}
		}

		item, readErr := step.Reader.Read(ctx)
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read item %d: %w", result.ReadCount+1, readErr)
		}
		result.ReadCount++

		out, procErr := process(ctx, step.Processor, item)
		if errors.Is(procErr, batch.ErrFiltered) {
			result.FilterCount++
			continue
		}
		if procErr != nil {
			return fmt.Errorf("failed to process item %d: %w", result.ReadCount, procErr)
		}

		chunk = append(chunk, out)
		if len(chunk) == step.ChunkSize {
			if err := p.commit(ctx, step, chunk, result, logger); err != nil {
				return err
			}
			chunk = chunk[:0]
		}
	}

	if len(chunk) > 0 {
		return p.commit(ctx, step, chunk, result, logger)
	}
	return nil
}

func process(ctx context.Context, processor batch.ItemProcessor, item any) (any, error) {
	if processor == nil {
		return item, nil
	}
	return processor.Process(ctx, item)
}

// commit hands a chunk to the writer. The writer owns atomicity; on error the
// chunk is dropped and nothing of it counts as written.
func (p *Pipeline) commit(ctx context.Context, step batch.StepDefinition, chunk []any, result *batch.StepExecution, logger *slog.Logger) error {
	// The writer may keep the slice, so it gets its own copy.
	items := make([]any, len(chunk))
	copy(items, chunk)

	if err := step.Writer.Write(ctx, items); err != nil {
		return fmt.Errorf("failed to commit chunk %d (%d items): %w", result.CommitCount+1, len(items), err)
	}

	result.CommitCount++
	result.WriteCount += len(items)
	logger.Debug("Chunk committed",
		slog.Int("chunk", result.CommitCount),
		slog.Int("items", len(items)),
	)
	return nil
}
