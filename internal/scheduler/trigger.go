package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/robfig/cron/v3"
)

// Trigger yields the next activation time after a given time
type Trigger interface {
	Next(time.Time) time.Time
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseTrigger parses a cron expression. An optional leading seconds field is
// accepted ("0/10 * * * * *" fires every ten seconds), as are descriptors such
// as "@hourly" and "@every 10s".
func ParseTrigger(expr string) (Trigger, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty cron expression")
	}

	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// Every fires at a fixed interval. Unlike "@every", sub-second intervals are kept.
func Every(d time.Duration) Trigger {
	return interval(d)
}

type interval time.Duration

func (i interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// Tick describes one activation of the scheduler
type Tick struct {
	Time time.Time
	Seq  int64
}

// ParamsFunc builds the parameters of the run triggered by a tick. Each tick
// must yield parameters distinct from every earlier tick, or the launch will
// be rejected as a duplicate.
type ParamsFunc func(tick Tick) batch.JobParameters

// TimestampParams uses the tick time, to the nanosecond, as the only parameter
func TimestampParams(key string) ParamsFunc {
	return func(tick Tick) batch.JobParameters {
		return batch.NewParameters().
			AddString(key, tick.Time.Format(time.RFC3339Nano)).
			Build()
	}
}

// CounterParams uses the tick sequence number as the only parameter
func CounterParams(key string) ParamsFunc {
	return func(tick Tick) batch.JobParameters {
		return batch.NewParameters().AddLong(key, tick.Seq).Build()
	}
}
