package main

import (
	"fmt"
	"io"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/internal/bootstrap"
	"github.com/cuongbtq/batch-scheduler/internal/launcher"
	"github.com/cuongbtq/batch-scheduler/internal/person"
	"github.com/cuongbtq/batch-scheduler/internal/storage/memory"
	"github.com/cuongbtq/batch-scheduler/internal/storage/postgres"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func launchCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool

	c := &cobra.Command{
		Use:   "launch <job_name> [name(type)=value ...]",
		Short: "Run a job synchronously and wait for it to end",
		Long: "Run a job synchronously and wait for it to end.\n\n" +
			"Exit status is 0 when the execution completed, 1 when it failed,\n" +
			"2 when the launch was rejected and 3 on a usage error.",
		Example: "batchctl launch csvFileToDatabaseJob 'run(long)=1'\nbatchctl launch testJob time=2024-01-01 --dry-run",
		Args:    cobra.MinimumNArgs(1),
	}
	c.Flags().BoolVar(&dryRun, "dry-run", false, "Run against an in-memory store and sink instead of the database")

	c.RunE = func(c *cobra.Command, args []string) (err error) {
		params, err := batch.ParseParameters(args[1:])
		if err != nil {
			return &exitError{code: exitUsage, err: err}
		}

		a, err := loadApp(opts.configPath)
		if err != nil {
			return &exitError{code: exitUsage, err: err}
		}
		defer func() { err = multierr.Append(err, a.close()) }()

		var store launcher.Store
		var sink batch.ItemWriter
		if dryRun {
			store = memory.New()
			sink = person.NewMemoryRepository()
		} else {
			if err := a.connect(); err != nil {
				return err
			}
			store = postgres.NewStore(a.db.GetDB(), a.logger.Logger)
			sink = person.NewRepository(a.db.GetDB(), a.logger.Logger)
		}

		registry, err := bootstrap.NewRegistry(a.cfg, sink, a.logger.Logger)
		if err != nil {
			return err
		}

		outcome, err := launcher.New(registry, store, launcher.WithLogger(a.logger.Logger)).Run(c.Context(), args[0], params)
		if outcome != nil {
			printOutcome(c.OutOrStdout(), outcome)
		}
		if err != nil {
			return err
		}
		return outcomeError(outcome)
	}
	return c
}

// outcomeError maps a finished launch to the command's exit status
func outcomeError(outcome *batch.ExecutionOutcome) error {
	switch {
	case outcome.Rejected():
		return &exitError{code: exitRejected, err: outcome.Err}
	case !outcome.Succeeded():
		return &exitError{code: exitFailed, err: outcome.Err}
	default:
		return nil
	}
}

func printOutcome(w io.Writer, outcome *batch.ExecutionOutcome) {
	fmt.Fprintf(w, "job:        %s\n", outcome.JobName)
	fmt.Fprintf(w, "parameters: %s\n", outcome.Parameters)
	if outcome.Rejected() {
		fmt.Fprintf(w, "status:     REJECTED (%s)\n", outcome.Rejection)
		return
	}
	printExecution(w, outcome.Execution)
}

func printExecution(w io.Writer, e *batch.JobExecution) {
	fmt.Fprintf(w, "execution:  %s\n", e.ID)
	fmt.Fprintf(w, "status:     %s\n", e.Status)
	fmt.Fprintf(w, "started:    %s\n", e.StartTime.Format("2006-01-02 15:04:05.000"))
	if e.EndTime != nil {
		fmt.Fprintf(w, "duration:   %s\n", e.EndTime.Sub(e.StartTime))
	}
	if e.ExitMessage != "" {
		fmt.Fprintf(w, "exit:       %s\n", e.ExitMessage)
	}
	for _, s := range e.Steps {
		fmt.Fprintf(w, "step %s %s read=%d filter=%d write=%d commit=%d\n",
			s.Name, s.Status, s.ReadCount, s.FilterCount, s.WriteCount, s.CommitCount)
	}
}
