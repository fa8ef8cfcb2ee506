package batch

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the engine reports
type Kind int

const (
	KindNone Kind = iota
	KindUnknownJob
	KindInvalidParameters
	KindDuplicateCompletedRun
	KindConcurrentRunRejected
	KindStepFailure
)

var (
	// ErrUnknownJob is returned when no job definition is registered under a name
	ErrUnknownJob = errors.New("unknown job")

	// ErrInvalidParameters is returned when job parameters are malformed or missing required keys
	ErrInvalidParameters = errors.New("invalid job parameters")

	// ErrDuplicateCompletedRun is returned when the job instance already completed
	ErrDuplicateCompletedRun = errors.New("job instance already completed")

	// ErrConcurrentRunRejected is returned when an execution of the job instance is already running
	ErrConcurrentRunRejected = errors.New("job instance is already running")

	// ErrStepFailure marks a job execution that failed because one of its steps failed
	ErrStepFailure = errors.New("step failed")

	// ErrInstanceNotFound is returned when a job instance cannot be found in the store
	ErrInstanceNotFound = errors.New("job instance not found")

	// ErrExecutionNotFound is returned when a job execution cannot be found in the store
	ErrExecutionNotFound = errors.New("job execution not found")
)

func (k Kind) String() string {
	switch k {
	case KindUnknownJob:
		return "UnknownJob"
	case KindInvalidParameters:
		return "InvalidParameters"
	case KindDuplicateCompletedRun:
		return "DuplicateCompletedRun"
	case KindConcurrentRunRejected:
		return "ConcurrentRunRejected"
	case KindStepFailure:
		return "StepFailure"
	default:
		return "None"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnknownJob:
		return ErrUnknownJob
	case KindInvalidParameters:
		return ErrInvalidParameters
	case KindDuplicateCompletedRun:
		return ErrDuplicateCompletedRun
	case KindConcurrentRunRejected:
		return ErrConcurrentRunRejected
	case KindStepFailure:
		return ErrStepFailure
	default:
		return nil
	}
}

// Error is the single tagged error type surfaced by the launcher
type Error struct {
	Kind    Kind
	JobName string
	Err     error
}

// NewError creates a tagged error. err is the underlying cause and may be nil.
func NewError(kind Kind, jobName string, err error) *Error {
	return &Error{Kind: kind, JobName: jobName, Err: err}
}

func (e *Error) Error() string {
	msg := "batch error"
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.JobName != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.JobName)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUnknownJob) and friends match on the kind
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf extracts the failure kind from err, falling back to the bare sentinels
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range []Kind{KindUnknownJob, KindInvalidParameters, KindDuplicateCompletedRun, KindConcurrentRunRejected, KindStepFailure} {
		if errors.Is(err, k.sentinel()) {
			return k
		}
	}
	return KindNone
}

// IsUsageError reports caller misuse: unknown job or invalid parameters
func IsUsageError(err error) bool {
	k := KindOf(err)
	return k == KindUnknownJob || k == KindInvalidParameters
}

// IsRejection reports an identity-protection outcome: the run was skipped, not failed
func IsRejection(err error) bool {
	k := KindOf(err)
	return k == KindDuplicateCompletedRun || k == KindConcurrentRunRejected
}

// RetryableError wraps transient errors that should trigger a redelivery
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
