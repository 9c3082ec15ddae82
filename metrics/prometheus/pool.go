// Package prometheus exports pool and eviction activity as Prometheus
// metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/azargarov/lazyload/workerpool"
)

// PoolMetrics holds the collectors shared by every pool. Register it once
// per registry and hand For to workerpool.RegistryOptions.NewMetrics.
type PoolMetrics struct {
	submitted *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	executed  *prometheus.CounterVec
	panicked  *prometheus.CounterVec
	queued    *prometheus.GaugeVec
}

// NewPoolMetrics registers the pool collectors with reg. A nil reg creates
// unregistered collectors.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	return &PoolMetrics{
		submitted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lazyload_pool_tasks_submitted_total",
				Help: "Total number of load tasks accepted by a pool",
			},
			[]string{"pool"},
		),
		rejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lazyload_pool_tasks_rejected_total",
				Help: "Total number of load tasks rejected because the queue was full",
			},
			[]string{"pool"},
		),
		executed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lazyload_pool_tasks_executed_total",
				Help: "Total number of load tasks run by a worker",
			},
			[]string{"pool"},
		),
		panicked: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lazyload_pool_tasks_panicked_total",
				Help: "Total number of load tasks whose run panicked",
			},
			[]string{"pool"},
		),
		queued: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lazyload_pool_queued_tasks",
				Help: "Number of load tasks waiting in a pool queue",
			},
			[]string{"pool"},
		),
	}
}

// For returns the metrics policy of the pool with the given name.
func (m *PoolMetrics) For(name string) workerpool.MetricsPolicy {
	return &poolMetrics{
		submitted: m.submitted.WithLabelValues(name),
		rejected:  m.rejected.WithLabelValues(name),
		executed:  m.executed.WithLabelValues(name),
		panicked:  m.panicked.WithLabelValues(name),
		queued:    m.queued.WithLabelValues(name),
	}
}

type poolMetrics struct {
	submitted prometheus.Counter
	rejected  prometheus.Counter
	executed  prometheus.Counter
	panicked  prometheus.Counter
	queued    prometheus.Gauge
}

func (m *poolMetrics) IncSubmitted()   { m.submitted.Inc() }
func (m *poolMetrics) IncRejected()    { m.rejected.Inc() }
func (m *poolMetrics) IncExecuted()    { m.executed.Inc() }
func (m *poolMetrics) IncPanicked()    { m.panicked.Inc() }
func (m *poolMetrics) SetQueued(n int) { m.queued.Set(float64(n)) }
