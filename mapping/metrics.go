package mapping

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Update results.
const (
	resultApplied  = "applied"
	resultRejected = "rejected"
)

type metrics struct {
	// updates counts mapping updates by operation (load, merge) and result.
	updates *prometheus.CounterVec
	// fields tracks the declarations of the current snapshot by kind.
	fields *prometheus.GaugeVec
	// version is the version of the current snapshot.
	version prometheus.Gauge
}

// newMetrics creates the service metrics on reg. A nil reg leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		updates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldmap",
			Subsystem: "mapping",
			Name:      "updates_total",
			Help:      "Mapping updates by operation and result",
		}, []string{"operation", "result"}),
		fields: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fieldmap",
			Subsystem: "mapping",
			Name:      "fields",
			Help:      "Declarations in the current mapping by kind",
		}, []string{"kind"}),
		version: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fieldmap",
			Subsystem: "mapping",
			Name:      "version",
			Help:      "Version of the current mapping snapshot",
		}),
	}
}

func (m *metrics) recordUpdate(operation string, err error) {
	result := resultApplied
	if err != nil {
		result = resultRejected
	}
	m.updates.WithLabelValues(operation, result).Inc()
}

func (m *metrics) recordSnapshot(s *Snapshot) {
	stats := s.Stats()
	m.fields.WithLabelValues("concrete").Set(float64(stats.Fields))
	m.fields.WithLabelValues("alias").Set(float64(stats.Aliases))
	m.fields.WithLabelValues("runtime").Set(float64(stats.Runtime))
	m.version.Set(float64(s.Version))
}
