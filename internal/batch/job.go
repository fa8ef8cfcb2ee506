package batch

import (
	"context"
	"errors"
	"fmt"
)

// ErrFiltered is returned by an ItemProcessor to drop an item from the current chunk
var ErrFiltered = errors.New("item filtered")

// ItemReader produces a finite sequence of items. Read returns io.EOF once the
// input is exhausted. A reader always restarts from the beginning when opened.
type ItemReader interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (any, error)
	Close() error
}

// ItemProcessor transforms one input item into one output item
type ItemProcessor interface {
	Process(ctx context.Context, item any) (any, error)
}

// ProcessorFunc adapts a function to ItemProcessor
type ProcessorFunc func(ctx context.Context, item any) (any, error)

func (f ProcessorFunc) Process(ctx context.Context, item any) (any, error) {
	return f(ctx, item)
}

// ItemWriter persists a chunk. Either every item is persisted or none is.
type ItemWriter interface {
	Write(ctx context.Context, items []any) error
}

// WriterFunc adapts a function to ItemWriter
type WriterFunc func(ctx context.Context, items []any) error

func (f WriterFunc) Write(ctx context.Context, items []any) error {
	return f(ctx, items)
}

// RepeatStatus tells the pipeline whether a tasklet has more work to do
type RepeatStatus int

const (
	Finished RepeatStatus = iota
	Continuable
)

// Tasklet is a single unit of work with no chunking
type Tasklet interface {
	Execute(ctx context.Context) (RepeatStatus, error)
}

// TaskletFunc adapts a function to Tasklet
type TaskletFunc func(ctx context.Context) (RepeatStatus, error)

func (f TaskletFunc) Execute(ctx context.Context) (RepeatStatus, error) {
	return f(ctx)
}

// StepDefinition describes one stage of a job: either a chunk step
// (Reader, optional Processor, Writer) or a tasklet step.
type StepDefinition struct {
	Name      string
	ChunkSize int
	Reader    ItemReader
	Processor ItemProcessor // nil means pass-through
	Writer    ItemWriter
	Tasklet   Tasklet
}

// IsTasklet reports whether the step runs a tasklet instead of chunks
func (s StepDefinition) IsTasklet() bool {
	return s.Tasklet != nil
}

// Validate checks the step is exactly one of the two supported shapes
func (s StepDefinition) Validate() error {
	if s.Name == "" {
		return errors.New("step name is required")
	}

	chunked := s.Reader != nil || s.Writer != nil || s.Processor != nil
	switch {
	case s.Tasklet != nil && chunked:
		return fmt.Errorf("step %q: tasklet steps cannot have a reader, processor or writer", s.Name)
	case s.Tasklet != nil:
		return nil
	case s.Reader == nil:
		return fmt.Errorf("step %q: reader is required", s.Name)
	case s.Writer == nil:
		return fmt.Errorf("step %q: writer is required", s.Name)
	case s.ChunkSize < 1:
		return fmt.Errorf("step %q: chunk size must be greater than 0", s.Name)
	}
	return nil
}

// JobDefinition is an immutable named sequence of steps
type JobDefinition struct {
	Name  string
	Steps []StepDefinition

	// Validator, when set, rejects parameter sets the job cannot run with
	Validator func(JobParameters) error
}

// Validate checks the job definition and all of its steps
func (j JobDefinition) Validate() error {
	if j.Name == "" {
		return errors.New("job name is required")
	}
	if len(j.Steps) == 0 {
		return fmt.Errorf("job %q: at least one step is required", j.Name)
	}

	seen := make(map[string]struct{}, len(j.Steps))
	for _, s := range j.Steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("job %q: %w", j.Name, err)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("job %q: duplicate step name %q", j.Name, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// ValidateParameters runs the job's parameter validator, tagging failures as InvalidParameters
func (j JobDefinition) ValidateParameters(params JobParameters) error {
	if j.Validator == nil {
		return nil
	}
	if err := j.Validator(params); err != nil {
		return NewError(KindInvalidParameters, j.Name, err)
	}
	return nil
}

// RequireKeys returns a parameter validator demanding the given keys
func RequireKeys(keys ...string) func(JobParameters) error {
	return func(p JobParameters) error {
		for _, k := range keys {
			if _, ok := p.Get(k); !ok {
				return fmt.Errorf("missing required parameter %q", k)
			}
		}
		return nil
	}
}
