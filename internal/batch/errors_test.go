package batch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MatchesSentinels(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("launch failed: %w", NewError(KindStepFailure, "csvFileToDatabaseJob", cause))

	assert.ErrorIs(t, err, ErrStepFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrUnknownJob)
	assert.Equal(t, KindStepFailure, KindOf(err))
	assert.Contains(t, err.Error(), `step failed: "csvFileToDatabaseJob": disk full`)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      Kind
		usage     bool
		rejection bool
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "plain error", err: errors.New("boom"), want: KindNone},
		{name: "unknown job", err: NewError(KindUnknownJob, "x", nil), want: KindUnknownJob, usage: true},
		{name: "bare invalid parameters", err: fmt.Errorf("%w: bad", ErrInvalidParameters), want: KindInvalidParameters, usage: true},
		{name: "duplicate", err: NewError(KindDuplicateCompletedRun, "x", nil), want: KindDuplicateCompletedRun, rejection: true},
		{name: "bare concurrent", err: ErrConcurrentRunRejected, want: KindConcurrentRunRejected, rejection: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			assert.Equal(t, tt.usage, IsUsageError(tt.err))
			assert.Equal(t, tt.rejection, IsRejection(tt.err))
		})
	}
}

func TestRetryableError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewRetryableError(cause)

	var retryable *RetryableError
	assert.ErrorAs(t, err, &retryable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "retryable error: connection reset", err.Error())
}

func TestDecideLaunch(t *testing.T) {
	exec := func(s ExecutionStatus) *JobExecution { return &JobExecution{Status: s} }

	tests := []struct {
		name       string
		executions []*JobExecution
		want       LaunchDecision
	}{
		{name: "no executions", want: LaunchAllowed},
		{name: "failed can restart", executions: []*JobExecution{exec(StatusFailed)}, want: LaunchAllowed},
		{name: "stopped can restart", executions: []*JobExecution{exec(StatusStopped)}, want: LaunchAllowed},
		{name: "completed", executions: []*JobExecution{exec(StatusFailed), exec(StatusCompleted)}, want: LaunchRejectCompleted},
		{name: "running", executions: []*JobExecution{exec(StatusFailed), exec(StatusStarted)}, want: LaunchRejectRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideLaunch(tt.executions))
		})
	}

	assert.ErrorIs(t, LaunchRejectCompleted.Err("testJob"), ErrDuplicateCompletedRun)
	assert.ErrorIs(t, LaunchRejectRunning.Err("testJob"), ErrConcurrentRunRejected)
	assert.NoError(t, LaunchAllowed.Err("testJob"))
}
