package main

import (
	"fmt"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/internal/bootstrap"
	"github.com/cuongbtq/batch-scheduler/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func enqueueCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "enqueue <job_name> [name(type)=value ...]",
		Short:   "Queue a launch request for the batch service worker",
		Example: "batchctl enqueue csvFileToDatabaseJob 'run(long)=2'",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) (err error) {
			if _, err := batch.ParseParameters(args[1:]); err != nil {
				return &exitError{code: exitUsage, err: err}
			}

			a, err := loadApp(opts.configPath)
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			defer func() { err = multierr.Append(err, a.close()) }()

			if err := a.cfg.ValidateRabbitMQConfig(); err != nil {
				return &exitError{code: exitUsage, err: fmt.Errorf("invalid config: %w", err)}
			}

			client, err := bootstrap.InitRabbitMQ(&a.cfg.RabbitMQ, a.logger.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
			}
			defer func() { err = multierr.Append(err, client.Close()) }()

			if err := worker.NewPublisher(client).Enqueue(c.Context(), args[0], args[1:]); err != nil {
				return err
			}

			fmt.Fprintf(c.OutOrStdout(), "enqueued launch request for %s\n", args[0])
			return nil
		},
	}
}
