package jobs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/internal/launcher"
	"github.com/cuongbtq/batch-scheduler/internal/person"
	"github.com/cuongbtq/batch-scheduler/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newLauncher(t *testing.T, opts CSVImportOptions, sink batch.ItemWriter, logger *slog.Logger) *launcher.Launcher {
	t.Helper()
	registry, err := NewRegistry(opts, sink, logger)
	require.NoError(t, err)
	return launcher.New(registry, memory.New(), launcher.WithLogger(discard))
}

func TestRegistry(t *testing.T) {
	registry, err := NewRegistry(CSVImportOptions{SourcePath: "testdata/people.csv"}, person.NewMemoryRepository(), discard)
	require.NoError(t, err)
	assert.Equal(t, []string{CSVFileToDatabaseJobName, TestJobName}, registry.Names())

	def, ok := registry.Get(CSVFileToDatabaseJobName)
	require.True(t, ok)
	assert.Equal(t, DefaultChunkSize, def.Steps[0].ChunkSize)
}

func TestCSVFileToDatabaseJob_ImportsUppercasedPeople(t *testing.T) {
	sink := person.NewMemoryRepository()
	l := newLauncher(t, CSVImportOptions{SourcePath: "testdata/people.csv", LinesToSkip: 1, ChunkSize: 10}, sink, discard)
	ctx := context.Background()

	outcome, err := l.Run(ctx, CSVFileToDatabaseJobName, batch.NewParameters().AddString("time", "t1").Build())
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())

	step := outcome.Execution.Steps[0]
	assert.Equal(t, CSVFileToDatabaseStepName, step.Name)
	assert.Equal(t, 2, step.ReadCount)
	assert.Equal(t, 2, step.WriteCount)
	assert.Equal(t, 1, step.CommitCount)

	people, err := sink.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []person.Person{
		{ID: 1, Name: "ANN", Email: "A@X"},
		{ID: 2, Name: "BO", Email: "B@X"},
	}, people)
}

func TestCSVFileToDatabaseJob_SinkFailureFailsJobAndRestartSucceeds(t *testing.T) {
	sink := person.NewMemoryRepository()
	sink.FailOn = 3
	sink.FailErr = errors.New("duplicate key value violates unique constraint")

	l := newLauncher(t, CSVImportOptions{SourcePath: "testdata/people_23.csv", LinesToSkip: 1, ChunkSize: 10}, sink, discard)
	ctx := context.Background()
	params := batch.NewParameters().AddString("time", "t1").Build()

	outcome, err := l.Run(ctx, CSVFileToDatabaseJobName, params)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusFailed, outcome.Status())
	assert.ErrorIs(t, outcome.Err, batch.ErrStepFailure)

	step := outcome.Execution.Steps[0]
	assert.Equal(t, batch.StepFailed, step.Status)
	assert.Equal(t, 2, step.CommitCount)
	assert.Equal(t, 20, step.WriteCount)

	people, err := sink.List(ctx)
	require.NoError(t, err)
	assert.Len(t, people, 20)
	assert.Equal(t, "USER20", people[19].Name)

	// the restart re-reads the file from the top
	restart, err := l.Run(ctx, CSVFileToDatabaseJobName, params)
	require.NoError(t, err)
	assert.True(t, restart.Succeeded())
	assert.Equal(t, outcome.Execution.InstanceID, restart.Execution.InstanceID)
	assert.Equal(t, 23, restart.Execution.Steps[0].WriteCount)
	assert.Equal(t, 3, restart.Execution.Steps[0].CommitCount)
}

func TestCSVFileToDatabaseJob_MissingSourceFails(t *testing.T) {
	l := newLauncher(t, CSVImportOptions{SourcePath: "testdata/missing.csv", LinesToSkip: 1}, person.NewMemoryRepository(), discard)

	outcome, err := l.Run(context.Background(), CSVFileToDatabaseJobName, batch.NewParameters().AddString("time", "t1").Build())
	require.NoError(t, err)
	assert.Equal(t, batch.StatusFailed, outcome.Status())
	assert.Contains(t, outcome.Execution.ExitMessage, "failed to open reader")
}

func TestTestJob_LogsGreetingOncePerInstance(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	l := newLauncher(t, CSVImportOptions{SourcePath: "testdata/people.csv"}, person.NewMemoryRepository(), logger)
	ctx := context.Background()
	params := batch.NewParameters().AddString("time", "2024-01-01T00:00:00").Build()

	first, err := l.Run(ctx, TestJobName, params)
	require.NoError(t, err)
	assert.True(t, first.Succeeded())

	second, err := l.Run(ctx, TestJobName, params)
	require.NoError(t, err)
	assert.Equal(t, batch.KindDuplicateCompletedRun, second.Rejection)

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Hello batch")))
}
