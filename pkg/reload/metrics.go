package reload

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the call site cache. A nil *Metrics records nothing.
type Metrics struct {
	lookups    *prometheus.CounterVec
	generation prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gojvm",
			Subsystem: "reload",
			Name:      "callsite_cache_lookups_total",
			Help:      "Call site cache lookups, by result (hit or miss).",
		}, []string{"result"}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gojvm",
			Subsystem: "reload",
			Name:      "generation",
			Help:      "Number of reloads applied.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.lookups, m.generation)
	}
	return m
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.lookups.WithLabelValues("hit").Inc()
	} else {
		m.lookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) setGeneration(g uint64) {
	if m == nil {
		return
	}
	m.generation.Set(float64(g))
}
