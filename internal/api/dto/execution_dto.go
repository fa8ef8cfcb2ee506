package dto

import (
	"time"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
)

// LaunchRequest is the body of POST /api/v1/jobs/:job_name/executions.
// Parameters and Params are alternatives; at most one may be set.
type LaunchRequest struct {
	Parameters map[string]any `json:"parameters"`
	Params     []string       `json:"params"`
}

// LaunchResponse reports the outcome of a synchronous launch
type LaunchResponse struct {
	JobName   string        `json:"job_name"`
	Status    string        `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	Execution *ExecutionDTO `json:"execution,omitempty"`
}

// StatusRejected is the LaunchResponse status of a launch skipped by the identity rules
const StatusRejected = "REJECTED"

type ListExecutionsRequest struct {
	JobName  string `form:"job_name"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListExecutionsResponse struct {
	Executions []ExecutionDTO `json:"executions"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type ListJobsResponse struct {
	Jobs []string `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ExecutionDTO struct {
	ExecutionID string    `json:"execution_id"`
	InstanceID  string    `json:"instance_id"`
	JobName     string    `json:"job_name"`
	Parameters  []string  `json:"parameters"`
	Status      string    `json:"status"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time,omitempty"`
	ExitMessage string    `json:"exit_message,omitempty"`
	Steps       []StepDTO `json:"steps,omitempty"`
}

type StepDTO struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	ReadCount   int    `json:"read_count"`
	FilterCount int    `json:"filter_count"`
	WriteCount  int    `json:"write_count"`
	CommitCount int    `json:"commit_count"`
	ExitMessage string `json:"exit_message,omitempty"`
}

// FromExecution converts a stored execution into its response form
func FromExecution(e *batch.JobExecution) ExecutionDTO {
	out := ExecutionDTO{
		ExecutionID: e.ID,
		InstanceID:  e.InstanceID,
		JobName:     e.JobName,
		Parameters:  e.Parameters.Args(),
		Status:      string(e.Status),
		StartTime:   e.StartTime.Format(time.RFC3339Nano),
		ExitMessage: e.ExitMessage,
	}
	if e.EndTime != nil {
		out.EndTime = e.EndTime.Format(time.RFC3339Nano)
	}

	for _, s := range e.Steps {
		out.Steps = append(out.Steps, StepDTO{
			Name:        s.Name,
			Status:      string(s.Status),
			ReadCount:   s.ReadCount,
			FilterCount: s.FilterCount,
			WriteCount:  s.WriteCount,
			CommitCount: s.CommitCount,
			ExitMessage: s.ExitMessage,
		})
	}
	return out
}
