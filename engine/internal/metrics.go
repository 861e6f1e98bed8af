package internal

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "goflow"

// NewMetrics creates the engine metrics. If registerer is nil, the metrics are collected, but not registered.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		InstancesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "process_instances_started_total",
			Help:      "Number of started process instances.",
		}),
		InstancesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "process_instances_ended_total",
			Help:      "Number of ended process instances by status.",
		}, []string{"status"}),
		TaskRunsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "task_runs_ended_total",
			Help:      "Number of ended task runs by element type and status.",
		}, []string{"element_type", "status"}),
		CancelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cancel_requests_total",
			Help:      "Number of cancel requests by result.",
		}, []string{"result"}),
		SLADeadlines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sla_deadlines_total",
			Help:      "Number of reached SLA deadlines by kind.",
		}, []string{"kind"}),
		VariableConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "variable_conflicts_total",
			Help:      "Number of variables, written by overlapping task runs.",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of atomic process instance steps, including the event log append.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}

	if registerer == nil {
		return m, nil
	}

	for _, collector := range m.collectors() {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type Metrics struct {
	InstancesStarted  prometheus.Counter
	InstancesEnded    *prometheus.CounterVec
	TaskRunsEnded     *prometheus.CounterVec
	CancelRequests    *prometheus.CounterVec
	SLADeadlines      *prometheus.CounterVec
	VariableConflicts prometheus.Counter
	StepDuration      prometheus.Histogram
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.InstancesStarted,
		m.InstancesEnded,
		m.TaskRunsEnded,
		m.CancelRequests,
		m.SLADeadlines,
		m.VariableConflicts,
		m.StepDuration,
	}
}
