package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/internal/storage"
)

// Launcher runs a job synchronously
type Launcher interface {
	Run(ctx context.Context, jobName string, params batch.JobParameters) (*batch.ExecutionOutcome, error)
}

// ExecutionStore is the read side of the job execution store
type ExecutionStore interface {
	GetExecution(ctx context.Context, id string) (*batch.JobExecution, error)
	LatestExecution(ctx context.Context, jobName string, params batch.JobParameters) (*batch.JobExecution, error)
	ListExecutions(ctx context.Context, filter storage.ExecutionFilter) ([]*batch.JobExecution, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Registry *batch.Registry
	Launcher Launcher
	Store    ExecutionStore
}

// JobHandler handles job and execution HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	registry *batch.Registry
	launcher Launcher
	store    ExecutionStore
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		registry: deps.Registry,
		launcher: deps.Launcher,
		store:    deps.Store,
	}
}
