// Package postgres is the PostgreSQL job execution store.
//
// Instance identity is a unique (job_name, job_key) pair. The "one running
// execution per instance" rule is enforced twice: RecordStart locks the
// instance row before checking the history, and a partial unique index on
// STARTED executions rejects anything that slips past the lock.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/internal/storage"
	"github.com/cuongbtq/batch-scheduler/shared/postgresql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

var _ storage.Store = (*Store)(nil)

// Store is a storage.Store backed by PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the execution tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create execution schema: %w", err)
	}
	s.logger.Info("Execution schema ready")
	return nil
}

type instanceRow struct {
	ID         string              `db:"job_instance_id"`
	JobName    string              `db:"job_name"`
	Key        string              `db:"job_key"`
	Parameters batch.JobParameters `db:"parameters"`
	CreatedAt  time.Time           `db:"created_at"`
}

func (r instanceRow) toDomain() *batch.JobInstance {
	return &batch.JobInstance{
		ID:         r.ID,
		JobName:    r.JobName,
		Parameters: r.Parameters,
		Key:        r.Key,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

type executionRow struct {
	ID          string              `db:"job_execution_id"`
	InstanceID  string              `db:"job_instance_id"`
	JobName     string              `db:"job_name"`
	Parameters  batch.JobParameters `db:"parameters"`
	Status      string              `db:"status"`
	StartTime   time.Time           `db:"start_time"`
	EndTime     sql.NullTime        `db:"end_time"`
	ExitMessage string              `db:"exit_message"`
}

func (r executionRow) toDomain() *batch.JobExecution {
	exec := &batch.JobExecution{
		ID:          r.ID,
		InstanceID:  r.InstanceID,
		JobName:     r.JobName,
		Parameters:  r.Parameters,
		Status:      batch.ExecutionStatus(r.Status),
		StartTime:   r.StartTime.UTC(),
		ExitMessage: r.ExitMessage,
	}
	if r.EndTime.Valid {
		end := r.EndTime.Time.UTC()
		exec.EndTime = &end
	}
	return exec
}

type stepRow struct {
	ExecutionID string    `db:"job_execution_id"`
	Name        string    `db:"step_name"`
	Status      string    `db:"status"`
	ReadCount   int       `db:"read_count"`
	FilterCount int       `db:"filter_count"`
	WriteCount  int       `db:"write_count"`
	CommitCount int       `db:"commit_count"`
	StartTime   time.Time `db:"start_time"`
	EndTime     time.Time `db:"end_time"`
	ExitMessage string    `db:"exit_message"`
}

const executionColumns = `
	job_execution_id, job_instance_id, job_name, parameters,
	status, start_time, end_time, exit_message
`

// ResolveInstance finds or creates the instance for (jobName, params) and
// returns it with its executions, oldest first
func (s *Store) ResolveInstance(ctx context.Context, jobName string, params batch.JobParameters) (*batch.JobInstance, []*batch.JobExecution, error) {
	insert := `
		INSERT INTO batch_job_instance (job_instance_id, job_name, job_key, parameters)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_name, job_key) DO NOTHING
	`
	key := params.Key()

	if _, err := s.db.ExecContext(ctx, insert, uuid.NewString(), jobName, key, params); err != nil {
		return nil, nil, fmt.Errorf("failed to create job instance: %w", err)
	}

	var row instanceRow
	query := `
		SELECT job_instance_id, job_name, job_key, parameters, created_at
		FROM batch_job_instance
		WHERE job_name = $1 AND job_key = $2
	`
	if err := s.db.GetContext(ctx, &row, query, jobName, key); err != nil {
		return nil, nil, fmt.Errorf("failed to get job instance: %w", err)
	}

	history, err := s.history(ctx, s.db, row.ID)
	if err != nil {
		return nil, nil, err
	}

	return row.toDomain(), history, nil
}

// CanLaunch applies the launch rules to the stored history of the instance
func (s *Store) CanLaunch(ctx context.Context, instance *batch.JobInstance) (batch.LaunchDecision, error) {
	history, err := s.history(ctx, s.db, instance.ID)
	if err != nil {
		return batch.LaunchAllowed, err
	}
	return batch.DecideLaunch(history), nil
}

// RecordStart inserts a STARTED execution. The instance row is locked for the
// duration of the check-and-insert.
func (s *Store) RecordStart(ctx context.Context, instance *batch.JobInstance) (*batch.JobExecution, error) {
	var exec *batch.JobExecution

	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var inst instanceRow
		lock := `
			SELECT job_instance_id, job_name, job_key, parameters, created_at
			FROM batch_job_instance
			WHERE job_instance_id = $1
			FOR UPDATE
		`
		if err := tx.GetContext(ctx, &inst, lock, instance.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", batch.ErrInstanceNotFound, instance.ID)
			}
			return fmt.Errorf("failed to lock job instance: %w", err)
		}

		history, err := s.history(ctx, tx, inst.ID)
		if err != nil {
			return err
		}
		if err := batch.DecideLaunch(history).Err(inst.JobName); err != nil {
			return err
		}

		var row executionRow
		insert := `
			INSERT INTO batch_job_execution (job_execution_id, job_instance_id, job_name, parameters, status, start_time)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING ` + executionColumns
		err = tx.GetContext(ctx, &row, insert,
			uuid.NewString(), inst.ID, inst.JobName, inst.Parameters, batch.StatusStarted)
		if err != nil {
			if isUniqueViolation(err) {
				return batch.NewError(batch.KindConcurrentRunRejected, inst.JobName, nil)
			}
			return fmt.Errorf("failed to insert job execution: %w", err)
		}

		exec = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Job execution recorded",
		slog.String("execution_id", exec.ID),
		slog.String("job_name", exec.JobName),
	)
	return exec, nil
}

// RecordEnd stores the terminal status of the execution and its step summaries
func (s *Store) RecordEnd(ctx context.Context, execution *batch.JobExecution) error {
	endTime := time.Now().UTC()
	if execution.EndTime != nil {
		endTime = *execution.EndTime
	}

	return postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		update := `
			UPDATE batch_job_execution
			SET status = $1,
			    end_time = $2,
			    exit_message = $3
			WHERE job_execution_id = $4
			  AND status = $5
		`
		result, err := tx.ExecContext(ctx, update,
			execution.Status, endTime, execution.ExitMessage, execution.ID, batch.StatusStarted)
		if err != nil {
			return fmt.Errorf("failed to update job execution: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%w: no running execution %s", batch.ErrExecutionNotFound, execution.ID)
		}

		insertStep := `
			INSERT INTO batch_step_execution (
				job_execution_id, step_name, status,
				read_count, filter_count, write_count, commit_count,
				start_time, end_time, exit_message
			) VALUES (
				:job_execution_id, :step_name, :status,
				:read_count, :filter_count, :write_count, :commit_count,
				:start_time, :end_time, :exit_message
			)
		`
		for _, step := range execution.Steps {
			row := stepRow{
				ExecutionID: execution.ID,
				Name:        step.Name,
				Status:      string(step.Status),
				ReadCount:   step.ReadCount,
				FilterCount: step.FilterCount,
				WriteCount:  step.WriteCount,
				CommitCount: step.CommitCount,
				StartTime:   step.StartTime,
				EndTime:     step.EndTime,
				ExitMessage: step.ExitMessage,
			}
			if _, err := tx.NamedExecContext(ctx, insertStep, row); err != nil {
				return fmt.Errorf("failed to insert step execution %q: %w", step.Name, err)
			}
		}
		return nil
	})
}

// GetExecution returns an execution with its step summaries
func (s *Store) GetExecution(ctx context.Context, id string) (*batch.JobExecution, error) {
	var row executionRow
	query := `SELECT ` + executionColumns + ` FROM batch_job_execution WHERE job_execution_id = $1`

	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", batch.ErrExecutionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job execution: %w", err)
	}

	exec := row.toDomain()
	if err := s.attachSteps(ctx, []*batch.JobExecution{exec}); err != nil {
		return nil, err
	}
	return exec, nil
}

// LatestExecution returns the most recent execution of the instance identified by jobName and params
func (s *Store) LatestExecution(ctx context.Context, jobName string, params batch.JobParameters) (*batch.JobExecution, error) {
	var instanceID string
	err := s.db.GetContext(ctx, &instanceID,
		`SELECT job_instance_id FROM batch_job_instance WHERE job_name = $1 AND job_key = $2`,
		jobName, params.Key())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, batch.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get job instance: %w", err)
	}

	var row executionRow
	query := `
		SELECT ` + executionColumns + `
		FROM batch_job_execution
		WHERE job_instance_id = $1
		ORDER BY start_time DESC, job_execution_id DESC
		LIMIT 1
	`
	if err := s.db.GetContext(ctx, &row, query, instanceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, batch.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("failed to get latest job execution: %w", err)
	}

	exec := row.toDomain()
	if err := s.attachSteps(ctx, []*batch.JobExecution{exec}); err != nil {
		return nil, err
	}
	return exec, nil
}

// ListExecutions lists executions newest first, returning up to PageSize+1 rows
func (s *Store) ListExecutions(ctx context.Context, filter storage.ExecutionFilter) ([]*batch.JobExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM batch_job_execution WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.JobName != "" {
		query += fmt.Sprintf(" AND job_name = $%d", argIdx)
		args = append(args, filter.JobName)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (start_time, job_execution_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.StartTime, filter.Cursor.ExecutionID)
		argIdx += 2
	}

	query += " ORDER BY start_time DESC, job_execution_id DESC"

	if filter.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.PageSize+1)
	}

	var rows []executionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list job executions: %w", err)
	}

	executions := make([]*batch.JobExecution, len(rows))
	for i, row := range rows {
		executions[i] = row.toDomain()
	}
	return executions, nil
}

// CountExecutions returns how many executions the instance has had
func (s *Store) CountExecutions(ctx context.Context, instanceID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM batch_job_execution WHERE job_instance_id = $1`, instanceID)
	if err != nil {
		return 0, fmt.Errorf("failed to count job executions: %w", err)
	}
	return count, nil
}

// MaxLongParameter returns the highest LONG value stored under key across the
// job's instances, or 0 when there is none
func (s *Store) MaxLongParameter(ctx context.Context, jobName, key string) (int64, error) {
	query := `
		SELECT COALESCE(MAX((p.value->>'value')::BIGINT), 0)
		FROM batch_job_instance i
		CROSS JOIN LATERAL jsonb_array_elements(i.parameters) AS p(value)
		WHERE i.job_name = $1
		  AND p.value->>'key' = $2
		  AND p.value->>'type' = 'LONG'`

	var highest int64
	if err := s.db.GetContext(ctx, &highest, query, jobName, key); err != nil {
		return 0, fmt.Errorf("failed to query highest %q parameter: %w", key, err)
	}
	return highest, nil
}

func (s *Store) history(ctx context.Context, q sqlx.QueryerContext, instanceID string) ([]*batch.JobExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM batch_job_execution
		WHERE job_instance_id = $1
		ORDER BY start_time, job_execution_id
	`
	var rows []executionRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, instanceID); err != nil {
		return nil, fmt.Errorf("failed to load execution history: %w", err)
	}

	history := make([]*batch.JobExecution, len(rows))
	for i, row := range rows {
		history[i] = row.toDomain()
	}
	return history, nil
}

func (s *Store) attachSteps(ctx context.Context, executions []*batch.JobExecution) error {
	ids := make([]string, len(executions))
	byID := make(map[string]*batch.JobExecution, len(executions))
	for i, e := range executions {
		ids[i] = e.ID
		byID[e.ID] = e
	}

	query := `
		SELECT job_execution_id, step_name, status,
		       read_count, filter_count, write_count, commit_count,
		       start_time, end_time, exit_message
		FROM batch_step_execution
		WHERE job_execution_id = ANY($1)
		ORDER BY step_execution_id
	`
	var rows []stepRow
	if err := s.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load step executions: %w", err)
	}

	for _, r := range rows {
		e := byID[r.ExecutionID]
		e.Steps = append(e.Steps, batch.StepExecution{
			Name:        r.Name,
			Status:      batch.StepStatus(r.Status),
			ReadCount:   r.ReadCount,
			FilterCount: r.FilterCount,
			WriteCount:  r.WriteCount,
			CommitCount: r.CommitCount,
			StartTime:   r.StartTime.UTC(),
			EndTime:     r.EndTime.UTC(),
			ExitMessage: r.ExitMessage,
		})
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
