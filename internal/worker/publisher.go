package worker

import (
	"context"
	"fmt"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
)

// JSONPublisher sends a JSON-encoded message. *rabbitmq.Client satisfies it.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// Publisher enqueues launch requests for a worker to pick up
type Publisher struct {
	client JSONPublisher
}

// NewPublisher creates a Publisher
func NewPublisher(client JSONPublisher) *Publisher {
	return &Publisher{client: client}
}

// Enqueue validates the request locally and publishes it. Parameters use the
// same name(type)=value form as the command line.
func (p *Publisher) Enqueue(ctx context.Context, jobName string, params []string) error {
	if jobName == "" {
		return batch.NewError(batch.KindInvalidParameters, "", fmt.Errorf("job name is required"))
	}
	if _, err := batch.ParseParameters(params); err != nil {
		return err
	}

	req := LaunchRequest{JobName: jobName, Params: params}
	if err := p.client.PublishJSON(ctx, req); err != nil {
		return fmt.Errorf("failed to enqueue launch request: %w", err)
	}
	return nil
}
