// Package metrics exposes the run's Prometheus instrumentation so a process
// can scrape /metrics without needing a custom reporter (SPEC_FULL.md §6.2).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the run's counters/gauges. The Dispatcher increments
// TasksTotal and sets TasksInFlight at the points it calls its Reporter;
// grid.Worker does not call IncGridSubmission or IncGridResubmission.
type Metrics struct {
	TasksTotal             *prometheus.CounterVec
	TasksInFlight          prometheus.Gauge
	GridSubmissionsTotal   *prometheus.CounterVec
	GridResubmissionsTotal *prometheus.CounterVec
}

// New registers and returns a fresh Metrics on reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anadama_tasks_total",
			Help: "Count of tasks by terminal status.",
		}, []string{"status"}),
		TasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "anadama_tasks_in_flight",
			Help: "Number of tasks currently dispatched to a worker pool.",
		}),
		GridSubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anadama_grid_submissions_total",
			Help: "Count of grid job submissions by outcome.",
		}, []string{"outcome"}),
		GridResubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anadama_grid_resubmissions_total",
			Help: "Count of grid job resubmissions by escalation reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.TasksTotal, m.TasksInFlight, m.GridSubmissionsTotal, m.GridResubmissionsTotal)
	return m
}

// IncTask implements runner.Metrics.
func (m *Metrics) IncTask(status string) {
	m.TasksTotal.WithLabelValues(status).Inc()
}

// SetInFlight implements runner.Metrics.
func (m *Metrics) SetInFlight(n int) {
	m.TasksInFlight.Set(float64(n))
}

// IncGridSubmission records one grid submission attempt's outcome
// ("submitted" or "failed").
func (m *Metrics) IncGridSubmission(outcome string) {
	m.GridSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// IncGridResubmission records one escalation-driven resubmission
// ("timeout" or "memkill").
func (m *Metrics) IncGridResubmission(reason string) {
	m.GridResubmissionsTotal.WithLabelValues(reason).Inc()
}
