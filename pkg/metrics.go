package pkg

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// runMetrics is a per-run registry, so runs in the same process (tests) do
// not share counters.
type runMetrics struct {
	registry     *prometheus.Registry
	taskRuns     *prometheus.CounterVec
	taskChanges  *prometheus.CounterVec
	taskFailures *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	handlerRuns  *prometheus.CounterVec
	recapTotal   *prometheus.GaugeVec
}

func newRunMetrics() *runMetrics {
	m := &runMetrics{
		registry: prometheus.NewRegistry(),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uplaybook_task_executions_total",
			Help: "The total number of task executions",
		}, []string{"task"}),
		taskChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uplaybook_task_changes_total",
			Help: "The total number of tasks that made changes",
		}, []string{"task"}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uplaybook_task_failures_total",
			Help: "The total number of failed tasks",
		}, []string{"task", "ignored"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uplaybook_task_duration_seconds",
			Help:    "The duration of task executions in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		handlerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uplaybook_handler_runs_total",
			Help: "The total number of handler executions",
		}, []string{"handler"}),
		recapTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uplaybook_recap",
			Help: "Recap counters at the end of the run",
		}, []string{"counter"}),
	}
	m.registry.MustRegister(m.taskRuns, m.taskChanges, m.taskFailures, m.taskDuration, m.handlerRuns, m.recapTotal)
	return m
}

func (m *runMetrics) observe(task string, res *Result, ignored bool, d time.Duration) {
	m.taskRuns.WithLabelValues(task).Inc()
	if res.Changed {
		m.taskChanges.WithLabelValues(task).Inc()
	}
	if res.Failed {
		label := "false"
		if ignored {
			label = "true"
		}
		m.taskFailures.WithLabelValues(task, label).Inc()
	}
	m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (m *runMetrics) finish(rc *Recap) {
	m.recapTotal.WithLabelValues("total").Set(float64(rc.Total))
	m.recapTotal.WithLabelValues("changed").Set(float64(rc.Changed))
	m.recapTotal.WithLabelValues("failure").Set(float64(rc.Failed))
}

func (m *runMetrics) writeTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// MetricsRegistry exposes the run's metrics, mostly for tests.
func (r *Run) MetricsRegistry() *prometheus.Registry {
	return r.metrics.registry
}

// TaskExecutions returns the execution counter of a task.
func (r *Run) TaskExecutions() *prometheus.CounterVec {
	return r.metrics.taskRuns
}
