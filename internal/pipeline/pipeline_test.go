package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWriter keeps every committed chunk and can fail a given chunk
type recordingWriter struct {
	chunks  [][]any
	calls   int
	failOn  int
	failErr error
}

func (w *recordingWriter) Write(_ context.Context, items []any) error {
	w.calls++
	if w.failOn == w.calls {
		return w.failErr
	}
	w.chunks = append(w.chunks, items)
	return nil
}

func (w *recordingWriter) persisted() []any {
	var all []any
	for _, c := range w.chunks {
		all = append(all, c...)
	}
	return all
}

func ints(n int) []any {
	items := make([]any, n)
	for i := range items {
		items[i] = i + 1
	}
	return items
}

func newTestPipeline() *Pipeline {
	return New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestExecute_ChunkBoundaries(t *testing.T) {
	tests := []struct {
		name        string
		items       int
		chunkSize   int
		wantCommits int
		wantLast    int
	}{
		{name: "empty input", items: 0, chunkSize: 10, wantCommits: 0},
		{name: "single partial chunk", items: 2, chunkSize: 10, wantCommits: 1, wantLast: 2},
		{name: "exact multiple", items: 20, chunkSize: 10, wantCommits: 2, wantLast: 10},
		{name: "remainder", items: 23, chunkSize: 10, wantCommits: 3, wantLast: 3},
		{name: "chunk of one", items: 4, chunkSize: 1, wantCommits: 4, wantLast: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &recordingWriter{}
			res := newTestPipeline().Execute(context.Background(), batch.StepDefinition{
				Name:      "step",
				ChunkSize: tt.chunkSize,
				Reader:    batch.NewSliceReader(ints(tt.items)...),
				Writer:    w,
			})

			require.Equal(t, batch.StepFinished, res.Status)
			require.NoError(t, res.Err)
			assert.Len(t, w.chunks, tt.wantCommits)
			assert.Equal(t, tt.wantCommits, res.CommitCount)
			assert.Equal(t, tt.items, res.ReadCount)
			assert.Equal(t, tt.items, res.WriteCount)
			if tt.wantCommits > 0 {
				assert.Len(t, w.chunks[len(w.chunks)-1], tt.wantLast)
				assert.Equal(t, ints(tt.items), w.persisted())
			}
		})
	}
}

func TestExecute_ProcessorTransformsAndFilters(t *testing.T) {
	w := &recordingWriter{}
	res := newTestPipeline().Execute(context.Background(), batch.StepDefinition{
		Name:      "step",
		ChunkSize: 2,
		Reader:    batch.NewSliceReader(ints(5)...),
		Processor: batch.ProcessorFunc(func(_ context.Context, item any) (any, error) {
			n := item.(int)
			if n%2 == 0 {
				return nil, batch.ErrFiltered
			}
			return n * 10, nil
		}),
		Writer: w,
	})

	require.Equal(t, batch.StepFinished, res.Status)
	assert.Equal(t, 5, res.ReadCount)
	assert.Equal(t, 2, res.FilterCount)
	assert.Equal(t, 3, res.WriteCount)
	assert.Equal(t, [][]any{{10, 30}, {50}}, w.chunks)
}

func TestExecute_SinkFailureKeepsEarlierChunks(t *testing.T) {
	sinkErr := errors.New("unique constraint violated")
	w := &recordingWriter{failOn: 3, failErr: sinkErr}

	res := newTestPipeline().Execute(context.Background(), batch.StepDefinition{
		Name:      "step",
		ChunkSize: 2,
		Reader:    batch.NewSliceReader(ints(9)...),
		Writer:    w,
	})

	require.Equal(t, batch.StepFailed, res.Status)
	assert.ErrorIs(t, res.Err, sinkErr)
	assert.Contains(t, res.ExitMessage, "failed to commit chunk 3")

	// chunks 1 and 2 stay, chunk 3 (items 5, 6) is absent, nothing after it is read
	assert.Equal(t, []any{1, 2, 3, 4}, w.persisted())
	assert.Equal(t, 2, res.CommitCount)
	assert.Equal(t, 4, res.WriteCount)
	assert.Equal(t, 6, res.ReadCount)
}

type failingReader struct {
	*batch.SliceReader
	failAt   int
	reads    int
	closed   bool
	closeErr error
}

func (r *failingReader) Read(ctx context.Context) (any, error) {
	r.reads++
	if r.reads == r.failAt {
		return nil, errors.New("malformed line")
	}
	return r.SliceReader.Read(ctx)
}

func (r *failingReader) Close() error {
	r.closed = true
	return r.closeErr
}

func TestExecute_ReadErrorFailsStepAndClosesReader(t *testing.T) {
	w := &recordingWriter{}
	reader := &failingReader{SliceReader: batch.NewSliceReader(ints(10)...), failAt: 4}

	res := newTestPipeline().Execute(context.Background(), batch.StepDefinition{
		Name:      "step",
		ChunkSize: 2,
		Reader:    reader,
		Writer:    w,
	})

	require.Equal(t, batch.StepFailed, res.Status)
	assert.Contains(t, res.Err.Error(), "failed to read item 4: malformed line")
	assert.True(t, reader.closed)
	// first chunk committed, item 3 buffered and discarded
	assert.Equal(t, []any{1, 2}, w.persisted())
}

func TestExecute_CloseErrorFailsOtherwiseFinishedStep(t *testing.T) {
	reader := &failingReader{SliceReader: batch.NewSliceReader(ints(1)...), closeErr: errors.New("file busy")}

	res := newTestPipeline().Execute(context.Background(), batch.StepDefinition{
		Name:      "step",
		ChunkSize: 10,
		Reader:    reader,
		Writer:    &recordingWriter{},
	})

	require.Equal(t, batch.StepFailed, res.Status)
	assert.Contains(t, res.Err.Error(), "failed to close reader: file busy")
}

func TestExecute_ProcessorError(t *testing.T) {
	procErr := errors.New("bad record")
	res := newTestPipeline().Execute(context.Background(), batch.StepDefinition{
		Name:      "step",
		ChunkSize: 10,
		Reader:    batch.NewSliceReader(ints(3)...),
		Processor: batch.ProcessorFunc(func(context.Context, any) (any, error) { return nil, procErr }),
		Writer:    &recordingWriter{},
	})

	require.Equal(t, batch.StepFailed, res.Status)
	assert.ErrorIs(t, res.Err, procErr)
}

func TestExecute_Tasklet(t *testing.T) {
	t.Run("finished", func(t *testing.T) {
		calls := 0
		res := newTestPipeline().Execute(context.Background(), batch.StepDefinition{
			Name: "testStep",
			Tasklet: batch.TaskletFunc(func(context.Context) (batch.RepeatStatus, error) {
				calls++
				return batch.Finished, nil
			}),
		})

		assert.Equal(t, batch.StepFinished, res.Status)
		assert.Equal(t, 1, calls)
	})

	t.Run("continuable runs until finished", func(t *testing.T) {
		calls := 0
		res := newTestPipeline().Execute(context.Background(), batch.StepDefinition{
			Name: "testStep",
			Tasklet: batch.TaskletFunc(func(context.Context) (batch.RepeatStatus, error) {
				calls++
				if calls < 3 {
					return batch.Continuable, nil
				}
				return batch.Finished, nil
			}),
		})

		assert.Equal(t, batch.StepFinished, res.Status)
		assert.Equal(t, 3, calls)
	})

	t.Run("error", func(t *testing.T) {
		res := newTestPipeline().Execute(context.Background(), batch.StepDefinition{
			Name: "testStep",
			Tasklet: batch.TaskletFunc(func(context.Context) (batch.RepeatStatus, error) {
				return batch.Finished, errors.New("boom")
			}),
		})

		assert.Equal(t, batch.StepFailed, res.Status)
		assert.EqualError(t, res.Err, "tasklet failed: boom")
	})
}

func TestExecute_CanceledBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &recordingWriter{}

	res := newTestPipeline().Execute(ctx, batch.StepDefinition{
		Name:      "step",
		ChunkSize: 2,
		Reader:    batch.NewSliceReader(ints(6)...),
		Writer: batch.WriterFunc(func(ctx context.Context, items []any) error {
			cancel()
			return w.Write(ctx, items)
		}),
	})

	require.Equal(t, batch.StepFailed, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, []any{1, 2}, w.persisted())
}

func TestExecute_StepTimeout(t *testing.T) {
	p := New(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithStepTimeout(20*time.Millisecond),
	)

	res := p.Execute(context.Background(), batch.StepDefinition{
		Name: "slow",
		Tasklet: batch.TaskletFunc(func(ctx context.Context) (batch.RepeatStatus, error) {
			<-ctx.Done()
			return batch.Finished, ctx.Err()
		}),
	})

	require.Equal(t, batch.StepFailed, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestExecute_InvalidStepFailsWithoutRunning(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		wantErr   string
	}{
		{name: "zero chunk size", chunkSize: 0, wantErr: "chunk size must be greater than 0"},
		{name: "negative chunk size", chunkSize: -1, wantErr: "chunk size must be greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &recordingWriter{}
			res := newTestPipeline().Execute(context.Background(), batch.StepDefinition{
				Name:      "step",
				ChunkSize: tt.chunkSize,
				Reader:    batch.NewSliceReader(ints(3)...),
				Writer:    w,
			})

			require.Equal(t, batch.StepFailed, res.Status)
			assert.Contains(t, res.Err.Error(), tt.wantErr)
			assert.Zero(t, res.ReadCount)
			assert.Empty(t, w.chunks)
		})
	}
}
