package main

import (
	"errors"
	"fmt"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/internal/storage/postgres"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func statusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status <job_name> [name(type)=value ...]",
		Short:   "Print the latest execution of a job instance",
		Example: "batchctl status csvFileToDatabaseJob 'run(long)=1'",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) (err error) {
			params, err := batch.ParseParameters(args[1:])
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}

			a, err := loadApp(opts.configPath)
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			defer func() { err = multierr.Append(err, a.close()) }()

			if err := a.connect(); err != nil {
				return err
			}

			store := postgres.NewStore(a.db.GetDB(), a.logger.Logger)
			execution, err := store.LatestExecution(c.Context(), args[0], params)
			if errors.Is(err, batch.ErrInstanceNotFound) || errors.Is(err, batch.ErrExecutionNotFound) {
				return &exitError{code: exitFailed, err: fmt.Errorf("no execution of %s with parameters %s", args[0], params)}
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(c.OutOrStdout(), "job:        %s\n", execution.JobName)
			fmt.Fprintf(c.OutOrStdout(), "parameters: %s\n", execution.Parameters)
			printExecution(c.OutOrStdout(), execution)
			return nil
		},
	}
}
