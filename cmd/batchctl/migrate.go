package main

import (
	"github.com/cuongbtq/batch-scheduler/internal/bootstrap"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func migrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the execution store and person tables",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) (err error) {
			a, err := loadApp(opts.configPath)
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			defer func() { err = multierr.Append(err, a.close()) }()

			if err := a.connect(); err != nil {
				return err
			}
			return bootstrap.Migrate(c.Context(), a.db.GetDB(), a.logger.Logger)
		},
	}
}
