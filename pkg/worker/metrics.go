package worker

import (
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/admission"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/cancel"
	"github.com/prometheus/client_golang/prometheus"
)

// Task outcomes counted by the ophidia_worker_tasks_total metric.
const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeDiscarded = "discarded"
	outcomeCancelled = "cancelled"
	outcomeMalformed = "malformed"
	outcomeRejected  = "rejected"
	outcomeRequeued  = "requeued"
)

type metrics struct {
	reg      *prometheus.Registry
	tasks    *prometheus.CounterVec
	duration prometheus.Histogram
	updates  *prometheus.CounterVec
	kills    prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{reg: prometheus.NewRegistry()}

	m.tasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ophidia",
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "Number of task messages handled, by outcome",
		},
		[]string{"outcome"},
	)
	m.reg.MustRegister(m.tasks)

	m.duration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ophidia",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Wall clock time of finished jobs",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		},
	)
	m.reg.MustRegister(m.duration)

	m.updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ophidia",
			Subsystem: "worker",
			Name:      "updates_published_total",
			Help:      "Number of bookkeeping updates published, by mode",
		},
		[]string{"mode"},
	)
	m.reg.MustRegister(m.updates)

	m.kills = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ophidia",
			Subsystem: "worker",
			Name:      "cancelled_jobs_killed_total",
			Help:      "Number of running jobs killed by a cancellation",
		},
	)
	m.reg.MustRegister(m.kills)

	return m
}

func (m *metrics) setupGateMetrics(g *admission.Gate) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "ophidia",
			Subsystem: "worker",
			Name:      "cores_used",
			Help:      "Number of cores reserved by running jobs",
		},
		func() float64 { return float64(g.Used()) },
	))
	m.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "ophidia",
			Subsystem: "worker",
			Name:      "cores_max",
			Help:      "Number of cores available to jobs",
		},
		func() float64 { return float64(g.Max()) },
	))
	m.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "ophidia",
			Subsystem: "worker",
			Name:      "jobs_waiting",
			Help:      "Number of jobs waiting for cores",
		},
		func() float64 { return float64(g.Waiting()) },
	))
}

func (m *metrics) setupRegistryMetrics(r *cancel.Registry) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "ophidia",
			Subsystem: "worker",
			Name:      "cancellations_armed",
			Help:      "Number of workflows currently cancelled",
		},
		func() float64 { return float64(r.Armed()) },
	))
}

func (m *metrics) task(outcome string) {
	m.tasks.WithLabelValues(outcome).Inc()
}
