package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"tally/core/events"
)

type eventMetrics struct {
	published *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking published ledger events. The
// registry is itself an events.Emitter so it can sit in a fanout.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tally",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of committed events segmented by module and type.",
			}, []string{"module", "type"}),
		}
		prometheus.MustRegister(eventRegistry.published)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.Record(evt.EventType())
}

// Record counts one event of the given dotted type, e.g.
// "subscriptions.renewed".
func (m *eventMetrics) Record(eventType string) {
	if m == nil {
		return
	}
	module, name, found := strings.Cut(strings.TrimSpace(eventType), ".")
	if !found {
		module, name = "unknown", module
	}
	m.published.WithLabelValues(normaliseLabel(module, "unknown"), normaliseLabel(name, "unknown")).Inc()
}
