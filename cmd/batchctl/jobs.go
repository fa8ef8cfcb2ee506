package main

import (
	"fmt"

	"github.com/cuongbtq/batch-scheduler/internal/bootstrap"
	"github.com/cuongbtq/batch-scheduler/internal/person"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func jobsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List registered jobs",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) (err error) {
			a, err := loadApp(opts.configPath)
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			defer func() { err = multierr.Append(err, a.close()) }()

			registry, err := bootstrap.NewRegistry(a.cfg, person.NewMemoryRepository(), a.logger.Logger)
			if err != nil {
				return err
			}
			for _, name := range registry.Names() {
				fmt.Fprintln(c.OutOrStdout(), name)
			}
			return nil
		},
	}
}
