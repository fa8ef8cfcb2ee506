// Package jobs defines the jobs this service ships with
package jobs

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/internal/person"
)

// Job and step names
const (
	CSVFileToDatabaseJobName  = "csvFileToDatabaseJob"
	CSVFileToDatabaseStepName = "csvFileToDatabaseStep"
	TestJobName               = "testJob"
	TestStepName              = "testStep"

	DefaultChunkSize = 10
)

// CSVImportOptions configures the CSV import job
type CSVImportOptions struct {
	SourcePath  string
	LinesToSkip int
	Delimiter   rune
	ChunkSize   int
}

// CSVFileToDatabaseJob reads people from a CSV file, upper-cases them and
// writes them to sink in chunks.
func CSVFileToDatabaseJob(opts CSVImportOptions, sink batch.ItemWriter) batch.JobDefinition {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return batch.JobDefinition{
		Name: CSVFileToDatabaseJobName,
		Steps: []batch.StepDefinition{{
			Name:      CSVFileToDatabaseStepName,
			ChunkSize: chunkSize,
			Reader:    person.NewCSVReader(opts.SourcePath, opts.LinesToSkip, opts.Delimiter),
			Processor: person.UppercaseProcessor{},
			Writer:    sink,
		}},
	}
}

// TestJob is a single tasklet step that logs a greeting
func TestJob(logger *slog.Logger) batch.JobDefinition {
	return batch.JobDefinition{
		Name: TestJobName,
		Steps: []batch.StepDefinition{{
			Name: TestStepName,
			Tasklet: batch.TaskletFunc(func(context.Context) (batch.RepeatStatus, error) {
				logger.Info("Hello batch")
				return batch.Finished, nil
			}),
		}},
	}
}

// NewRegistry registers every shipped job
func NewRegistry(opts CSVImportOptions, sink batch.ItemWriter, logger *slog.Logger) (*batch.Registry, error) {
	return batch.NewRegistry(
		CSVFileToDatabaseJob(opts, sink),
		TestJob(logger),
	)
}
