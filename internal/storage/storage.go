// Package storage holds what the execution store implementations share:
// the query filter, the pagination cursor and the full store contract.
package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
)

// Store is the job execution store: instance identity, launch admission and
// execution history. memory.Store and postgres.Store implement it.
type Store interface {
	ResolveInstance(ctx context.Context, jobName string, params batch.JobParameters) (*batch.JobInstance, []*batch.JobExecution, error)
	CanLaunch(ctx context.Context, instance *batch.JobInstance) (batch.LaunchDecision, error)
	RecordStart(ctx context.Context, instance *batch.JobInstance) (*batch.JobExecution, error)
	RecordEnd(ctx context.Context, execution *batch.JobExecution) error

	GetExecution(ctx context.Context, id string) (*batch.JobExecution, error)
	LatestExecution(ctx context.Context, jobName string, params batch.JobParameters) (*batch.JobExecution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*batch.JobExecution, error)
	CountExecutions(ctx context.Context, instanceID string) (int, error)
	MaxLongParameter(ctx context.Context, jobName, key string) (int64, error)
}

// ExecutionFilter narrows ListExecutions. Results are ordered newest first;
// PageSize+1 rows are returned so callers can tell whether more exist.
type ExecutionFilter struct {
	JobName  string
	Status   batch.ExecutionStatus
	PageSize int
	Cursor   *Cursor
}

// Cursor marks the last execution of the previous page
type Cursor struct {
	StartTime   time.Time
	ExecutionID string
}

// Before reports whether an execution sorts after the cursor in newest-first order
func (c *Cursor) Before(e *batch.JobExecution) bool {
	if c == nil {
		return true
	}
	if e.StartTime.Equal(c.StartTime) {
		return e.ID < c.ExecutionID
	}
	return e.StartTime.Before(c.StartTime)
}

// DecodeCursor parses an opaque page token. An empty token means the first page.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var nanos int64
	if _, err := fmt.Sscanf(parts[0], "%d", &nanos); err != nil {
		return nil, fmt.Errorf("invalid start time in cursor: %w", err)
	}

	return &Cursor{
		StartTime:   time.Unix(0, nanos).UTC(),
		ExecutionID: parts[1],
	}, nil
}

// Encode renders the cursor as an opaque page token
func (c *Cursor) Encode() string {
	cs := fmt.Sprintf("%d|%s", c.StartTime.UnixNano(), c.ExecutionID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
