package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	published []any
	err       error
}

func (p *capturePublisher) PublishJSON(_ context.Context, v any) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, v)
	return nil
}

func TestPublisherEnqueue(t *testing.T) {
	client := &capturePublisher{}
	p := NewPublisher(client)

	require.NoError(t, p.Enqueue(context.Background(), "csvFileToDatabaseJob", []string{"run(long)=1"}))
	require.Len(t, client.published, 1)
	assert.Equal(t, LaunchRequest{JobName: "csvFileToDatabaseJob", Params: []string{"run(long)=1"}}, client.published[0])
}

func TestPublisherEnqueue_Errors(t *testing.T) {
	tests := []struct {
		name    string
		jobName string
		params  []string
		pubErr  error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "missing job name",
			jobName: "",
			check: func(t *testing.T, err error) {
				assert.True(t, batch.IsUsageError(err))
			},
		},
		{
			name:    "malformed parameter",
			jobName: "testJob",
			params:  []string{"run(long)=abc"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, batch.ErrInvalidParameters)
			},
		},
		{
			name:    "broker failure",
			jobName: "testJob",
			pubErr:  errors.New("channel closed"),
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, "failed to enqueue launch request: channel closed")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &capturePublisher{err: tt.pubErr}
			err := NewPublisher(client).Enqueue(context.Background(), tt.jobName, tt.params)
			require.Error(t, err)
			tt.check(t, err)
			assert.Empty(t, client.published)
		})
	}
}
