// Command batchctl launches and inspects batch jobs from the command line.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
)

// Exit codes of the launch command
const (
	exitCompleted = 0
	exitFailed    = 1
	exitRejected  = 2
	exitUsage     = 3
)

// exitError carries the process exit code of a failed command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitCode(err error) int {
	if err == nil {
		return exitCompleted
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if batch.IsUsageError(err) {
		return exitUsage
	}
	return exitFailed
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}
