package batch

// ExecutionStatus is the lifecycle status of a job execution
type ExecutionStatus string

// Job execution status constants
const (
	StatusStarted   ExecutionStatus = "STARTED"
	StatusCompleted ExecutionStatus = "COMPLETED"
	StatusFailed    ExecutionStatus = "FAILED"

	// Reserved. The engine never produces them, but an instance whose last
	// execution carries one of them may be restarted.
	StatusStopped   ExecutionStatus = "STOPPED"
	StatusAbandoned ExecutionStatus = "ABANDONED"
)

// IsTerminal reports whether the execution has finished
func (s ExecutionStatus) IsTerminal() bool {
	return s != StatusStarted
}

// IsRestartable reports whether an instance may be launched again after an execution ended with s
func (s ExecutionStatus) IsRestartable() bool {
	switch s {
	case StatusFailed, StatusStopped, StatusAbandoned:
		return true
	default:
		return false
	}
}

// StepStatus is the outcome of a single step
type StepStatus string

// Step status constants
const (
	StepFinished StepStatus = "FINISHED"
	StepFailed   StepStatus = "FAILED"
)

// LaunchDecision is the answer of the execution store to "may this instance run now?"
type LaunchDecision int

const (
	LaunchAllowed LaunchDecision = iota
	LaunchRejectCompleted
	LaunchRejectRunning
)

func (d LaunchDecision) String() string {
	switch d {
	case LaunchAllowed:
		return "ALLOW"
	case LaunchRejectCompleted:
		return "REJECT_COMPLETED"
	case LaunchRejectRunning:
		return "REJECT_RUNNING"
	default:
		return "UNKNOWN"
	}
}

// Err returns the rejection error matching the decision, or nil for LaunchAllowed
func (d LaunchDecision) Err(jobName string) error {
	switch d {
	case LaunchRejectCompleted:
		return NewError(KindDuplicateCompletedRun, jobName, nil)
	case LaunchRejectRunning:
		return NewError(KindConcurrentRunRejected, jobName, nil)
	default:
		return nil
	}
}

// DecideLaunch applies the instance identity rules to an execution history.
// A running execution blocks any launch; a completed one closes the instance for good.
func DecideLaunch(executions []*JobExecution) LaunchDecision {
	completed := false
	for _, e := range executions {
		switch e.Status {
		case StatusStarted:
			return LaunchRejectRunning
		case StatusCompleted:
			completed = true
		}
	}
	if completed {
		return LaunchRejectCompleted
	}
	return LaunchAllowed
}
