// Package metrics exposes launcher activity as Prometheus metrics
package metrics

import (
	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "batch"

// Launch results used as the "result" label
const (
	ResultCompleted         = "completed"
	ResultFailed            = "failed"
	ResultRejectedCompleted = "rejected_completed"
	ResultRejectedRunning   = "rejected_running"
	ResultUnknownJob        = "unknown_job"
	ResultInvalidParameters = "invalid_parameters"
	ResultError             = "error"
)

// Recorder records launch outcomes and step throughput
type Recorder struct {
	launches *prometheus.CounterVec
	items    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder registers the batch metrics with reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		launches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_launches_total",
			Help:      "Job launch requests by job and result",
		}, []string{"job", "result"}),
		items: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_items_total",
			Help:      "Items handled by chunk steps, by job, step and kind (read, filter, write)",
		}, []string{"job", "step", "kind"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_execution_duration_seconds",
			Help:      "Wall time of finished job executions",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"job", "status"}),
	}
}

// IncLaunch counts one launch request
func (r *Recorder) IncLaunch(jobName, result string) {
	r.launches.WithLabelValues(jobName, result).Inc()
}

// ObserveExecution records a finished execution
func (r *Recorder) ObserveExecution(execution *batch.JobExecution) {
	if execution.EndTime != nil {
		r.duration.WithLabelValues(execution.JobName, string(execution.Status)).
			Observe(execution.EndTime.Sub(execution.StartTime).Seconds())
	}

	for _, step := range execution.Steps {
		r.items.WithLabelValues(execution.JobName, step.Name, "read").Add(float64(step.ReadCount))
		r.items.WithLabelValues(execution.JobName, step.Name, "filter").Add(float64(step.FilterCount))
		r.items.WithLabelValues(execution.JobName, step.Name, "write").Add(float64(step.WriteCount))
	}
}
