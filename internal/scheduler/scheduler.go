// Package scheduler launches one job on a recurring trigger. Each tick gets
// fresh parameters, so each tick is a new job instance.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/robfig/cron/v3"
)

// Runner launches a job and waits for it to end
type Runner interface {
	Run(ctx context.Context, jobName string, params batch.JobParameters) (*batch.ExecutionOutcome, error)
}

// SequenceSource reports the highest sequence number already used for a job,
// so a restarted scheduler carries on after it
type SequenceSource interface {
	MaxLongParameter(ctx context.Context, jobName, key string) (int64, error)
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithParams sets how tick parameters are built. Defaults to TimestampParams("time").
func WithParams(fn ParamsFunc) Option {
	return func(s *Scheduler) { s.params = fn }
}

// WithSequence resumes the tick sequence from the highest LONG parameter key
// already stored for the job. Use it with CounterParams on a durable store.
func WithSequence(source SequenceSource, key string) Option {
	return func(s *Scheduler) {
		s.sequence = source
		s.sequenceKey = key
	}
}

// WithLogger sets the scheduler logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler fires the launcher for a single job on every trigger activation
type Scheduler struct {
	runner  Runner
	jobName string
	trigger Trigger
	params  ParamsFunc
	logger  *slog.Logger
	now     func() time.Time

	seq         atomic.Int64
	seqMu       sync.Mutex
	seqResumed  bool
	sequence    SequenceSource
	sequenceKey string

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a Scheduler for jobName
func New(runner Runner, jobName string, trigger Trigger, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:  runner,
		jobName: jobName,
		trigger: trigger,
		params:  TimestampParams("time"),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("job_name", jobName))
	return s
}

var errAlreadyStarted = errors.New("scheduler already started")

// Start begins firing ticks in the background. ctx is handed to every launch;
// Stop ends the schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errAlreadyStarted
	}

	log := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.DelayIfStillRunning(log)),
	)
	s.cron.Schedule(s.trigger, cron.FuncJob(func() {
		s.Tick(ctx)
	}))
	s.cron.Start()

	s.logger.Info("Scheduler started", slog.Time("next_tick", s.trigger.Next(s.now())))
	return nil
}

// Stop stops the schedule and waits for a running tick to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	s.logger.Info("Stopping scheduler...")
	<-c.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Tick performs one activation synchronously: build parameters and launch.
// Errors and rejections are logged and returned but never stop the schedule.
func (s *Scheduler) Tick(ctx context.Context) (*batch.ExecutionOutcome, error) {
	seq, err := s.nextSeq(ctx)
	if err != nil {
		s.logger.Error("Scheduled launch failed", slog.Any("error", err))
		return nil, err
	}

	tick := Tick{Time: s.now(), Seq: seq}
	params := s.params(tick)

	logger := s.logger.With(
		slog.Int64("tick", tick.Seq),
		slog.String("parameters", params.String()),
	)
	logger.Debug("Scheduler tick")

	outcome, err := s.runner.Run(ctx, s.jobName, params)
	switch {
	case err != nil:
		logger.Error("Scheduled launch failed", slog.Any("error", err))
	case outcome.Rejected():
		logger.Warn("Scheduled launch skipped", slog.String("reason", outcome.Rejection.String()))
	case !outcome.Succeeded():
		logger.Error("Scheduled execution failed",
			slog.String("execution_id", outcome.Execution.ID),
			slog.String("exit_message", outcome.Execution.ExitMessage),
		)
	default:
		logger.Info("Scheduled execution completed", slog.String("execution_id", outcome.Execution.ID))
	}
	return outcome, err
}

// nextSeq returns the next tick sequence number. With a sequence source the
// first call resumes from the stored high-water mark; a failed lookup is
// retried on the next tick.
func (s *Scheduler) nextSeq(ctx context.Context) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	if s.sequence != nil && !s.seqResumed {
		last, err := s.sequence.MaxLongParameter(ctx, s.jobName, s.sequenceKey)
		if err != nil {
			return 0, fmt.Errorf("failed to resume tick sequence: %w", err)
		}
		if last > s.seq.Load() {
			s.seq.Store(last)
		}
		s.seqResumed = true
		s.logger.Info("Tick sequence resumed", slog.Int64("last_seq", last))
	}
	return s.seq.Add(1), nil
}

// cronLogger routes robfig/cron's logging into slog. Its chatty info
// messages go to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}
