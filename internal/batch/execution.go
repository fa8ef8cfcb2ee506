package batch

import "time"

// JobInstance is the identity of a run: job name plus parameter set
type JobInstance struct {
	ID         string        `json:"id"`
	JobName    string        `json:"job_name"`
	Parameters JobParameters `json:"parameters"`
	Key        string        `json:"job_key"`
	CreatedAt  time.Time     `json:"created_at"`
}

// StepExecution summarises how a step ran within a job execution
type StepExecution struct {
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	ReadCount   int        `json:"read_count"`
	FilterCount int        `json:"filter_count"`
	WriteCount  int        `json:"write_count"`
	CommitCount int        `json:"commit_count"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	ExitMessage string     `json:"exit_message,omitempty"`

	// Err is the failure cause; only ExitMessage survives persistence
	Err error `json:"-"`
}

// JobExecution is one attempt at running a job instance
type JobExecution struct {
	ID          string          `json:"id"`
	InstanceID  string          `json:"instance_id"`
	JobName     string          `json:"job_name"`
	Parameters  JobParameters   `json:"parameters"`
	Status      ExecutionStatus `json:"status"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     *time.Time      `json:"end_time,omitempty"`
	ExitMessage string          `json:"exit_message,omitempty"`
	Steps       []StepExecution `json:"steps,omitempty"`

	// Err is the failure cause; only ExitMessage survives persistence
	Err error `json:"-"`
}

// Clone returns a deep copy safe to hand out of a store
func (e *JobExecution) Clone() *JobExecution {
	if e == nil {
		return nil
	}
	cp := *e
	if e.EndTime != nil {
		end := *e.EndTime
		cp.EndTime = &end
	}
	if e.Steps != nil {
		cp.Steps = make([]StepExecution, len(e.Steps))
		copy(cp.Steps, e.Steps)
	}
	return &cp
}

// Finish moves the execution to a terminal status
func (e *JobExecution) Finish(status ExecutionStatus, cause error, at time.Time) {
	e.Status = status
	e.EndTime = &at
	e.Err = cause
	if cause != nil {
		e.ExitMessage = cause.Error()
	}
}

// ExecutionOutcome is what the launcher reports for a launch request.
// Rejected launches carry no execution.
type ExecutionOutcome struct {
	JobName    string
	Parameters JobParameters
	Execution  *JobExecution
	Rejection  Kind
	Err        error
}

// Status returns the execution status, or "" for a rejected launch
func (o *ExecutionOutcome) Status() ExecutionStatus {
	if o.Execution == nil {
		return ""
	}
	return o.Execution.Status
}

// Succeeded reports whether the execution completed
func (o *ExecutionOutcome) Succeeded() bool {
	return o.Status() == StatusCompleted
}

// Rejected reports whether the launch was skipped by the identity rules
func (o *ExecutionOutcome) Rejected() bool {
	return o.Rejection != KindNone
}
