// Package memory is the in-process job execution store. It keeps all state in
// maps guarded by a single lock and hands out copies, never internal pointers.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/internal/storage"
	"github.com/google/uuid"
)

var _ storage.Store = (*Store)(nil)

// Store is a process-local storage.Store
type Store struct {
	mu sync.RWMutex

	instances  map[string]*batch.JobInstance    // instance ID -> instance
	byIdentity map[string]string                // job name + job key -> instance ID
	executions map[string]*batch.JobExecution   // execution ID -> execution
	history    map[string][]*batch.JobExecution // instance ID -> executions, oldest first

	now func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		instances:  make(map[string]*batch.JobInstance),
		byIdentity: make(map[string]string),
		executions: make(map[string]*batch.JobExecution),
		history:    make(map[string][]*batch.JobExecution),
		now:        time.Now,
	}
}

func identity(jobName, key string) string {
	return jobName + "\x00" + key
}

// ResolveInstance returns the instance for (jobName, params), creating it on
// first use, together with its executions oldest first.
func (s *Store) ResolveInstance(_ context.Context, jobName string, params batch.JobParameters) (*batch.JobInstance, []*batch.JobExecution, error) {
	key := params.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byIdentity[identity(jobName, key)]; ok {
		inst := *s.instances[id]
		return &inst, s.cloneHistory(id), nil
	}

	inst := &batch.JobInstance{
		ID:         uuid.NewString(),
		JobName:    jobName,
		Parameters: params,
		Key:        key,
		CreatedAt:  s.now().UTC(),
	}
	s.instances[inst.ID] = inst
	s.byIdentity[identity(jobName, key)] = inst.ID

	cp := *inst
	return &cp, nil, nil
}

// CanLaunch applies the launch rules to the instance history
func (s *Store) CanLaunch(_ context.Context, instance *batch.JobInstance) (batch.LaunchDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.instances[instance.ID]; !ok {
		return batch.LaunchAllowed, fmt.Errorf("%w: %s", batch.ErrInstanceNotFound, instance.ID)
	}
	return batch.DecideLaunch(s.history[instance.ID]), nil
}

// RecordStart persists a STARTED execution. The launch rules are re-checked
// under the write lock, so of two racing callers only one gets an execution.
func (s *Store) RecordStart(_ context.Context, instance *batch.JobInstance) (*batch.JobExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[instance.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", batch.ErrInstanceNotFound, instance.ID)
	}

	if err := batch.DecideLaunch(s.history[inst.ID]).Err(inst.JobName); err != nil {
		return nil, err
	}

	exec := &batch.JobExecution{
		ID:         uuid.NewString(),
		InstanceID: inst.ID,
		JobName:    inst.JobName,
		Parameters: inst.Parameters,
		Status:     batch.StatusStarted,
		StartTime:  s.now().UTC(),
	}
	s.executions[exec.ID] = exec
	s.history[inst.ID] = append(s.history[inst.ID], exec)

	return exec.Clone(), nil
}

// RecordEnd stores the terminal state of an execution
func (s *Store) RecordEnd(_ context.Context, execution *batch.JobExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.executions[execution.ID]
	if !ok {
		return fmt.Errorf("%w: %s", batch.ErrExecutionNotFound, execution.ID)
	}
	if stored.Status.IsTerminal() {
		return fmt.Errorf("execution %s already ended with status %s", execution.ID, stored.Status)
	}

	updated := execution.Clone()
	updated.Err = nil
	*stored = *updated
	return nil
}

func (s *Store) GetExecution(_ context.Context, id string) (*batch.JobExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", batch.ErrExecutionNotFound, id)
	}
	return exec.Clone(), nil
}

// LatestExecution returns the most recent execution of the instance identified by jobName and params
func (s *Store) LatestExecution(_ context.Context, jobName string, params batch.JobParameters) (*batch.JobExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdentity[identity(jobName, params.Key())]
	if !ok {
		return nil, batch.ErrInstanceNotFound
	}
	history := s.history[id]
	if len(history) == 0 {
		return nil, batch.ErrExecutionNotFound
	}
	return history[len(history)-1].Clone(), nil
}

func (s *Store) ListExecutions(_ context.Context, filter storage.ExecutionFilter) ([]*batch.JobExecution, error) {
	s.mu.RLock()
	matched := make([]*batch.JobExecution, 0)
	for _, e := range s.executions {
		if filter.JobName != "" && e.JobName != filter.JobName {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if !filter.Cursor.Before(e) {
			continue
		}
		matched = append(matched, e.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartTime.Equal(matched[j].StartTime) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].StartTime.After(matched[j].StartTime)
	})

	if filter.PageSize > 0 && len(matched) > filter.PageSize+1 {
		matched = matched[:filter.PageSize+1]
	}
	return matched, nil
}

// CountExecutions returns how many executions the instance has had
func (s *Store) CountExecutions(_ context.Context, instanceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history[instanceID]), nil
}

// MaxLongParameter returns the highest LONG value stored under key across the
// job's instances, or 0 when there is none
func (s *Store) MaxLongParameter(_ context.Context, jobName, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var highest int64
	for _, inst := range s.instances {
		if inst.JobName != jobName {
			continue
		}
		p, ok := inst.Parameters.Get(key)
		if !ok || p.Type != batch.TypeLong {
			continue
		}
		if n, ok := p.Value.(int64); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (s *Store) cloneHistory(instanceID string) []*batch.JobExecution {
	history := s.history[instanceID]
	out := make([]*batch.JobExecution, len(history))
	for i, e := range history {
		out[i] = e.Clone()
	}
	return out
}
