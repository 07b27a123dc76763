package indy

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts emulated call sites. A nil *Metrics records nothing.
type Metrics struct {
	emulations *prometheus.CounterVec
	linkTime   prometheus.Histogram
}

// NewMetrics creates the emulator's collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		emulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gojvm",
			Subsystem: "indy",
			Name:      "emulations_total",
			Help:      "Emulated invokedynamic links, by result (ok or the failing stage).",
		}, []string{"result"}),
		linkTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gojvm",
			Subsystem: "indy",
			Name:      "link_duration_seconds",
			Help:      "Time spent parsing, resolving and linking one call site.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.emulations, m.linkTime)
	}
	return m
}

func (m *Metrics) observe(start time.Time, err error) {
	if m == nil {
		return
	}
	m.linkTime.Observe(time.Since(start).Seconds())
	result := "ok"
	var ce *CallEmulationError
	switch {
	case errors.As(err, &ce):
		result = string(ce.Stage)
	case err != nil:
		result = "error"
	}
	m.emulations.WithLabelValues(result).Inc()
}
