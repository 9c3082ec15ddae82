package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EvictionMetrics counts evictions. Its OnEvict method plugs into
// eviction.Options.
type EvictionMetrics struct {
	evictions *prometheus.CounterVec
}

// NewEvictionMetrics registers the eviction collector with reg.
func NewEvictionMetrics(reg prometheus.Registerer) *EvictionMetrics {
	return &EvictionMetrics{
		evictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lazyload_eviction_total",
				Help: "Total number of evicted or removed entries, by whether the owner was still live",
			},
			[]string{"released"}, // "true", "false"
		),
	}
}

func (m *EvictionMetrics) OnEvict(_ string, released bool) {
	m.evictions.WithLabelValues(strconv.FormatBool(released)).Inc()
}
