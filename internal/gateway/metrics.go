// ABOUTME: Prometheus metrics for the event gateway.
// ABOUTME: Counters for throughput, drops, duplicates, and dispatch failures.

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's instrumentation. All components share one
// instance; tests pass a fresh registry to read values back.
type Metrics struct {
	EventsTotal        prometheus.Counter
	EventsByName       *prometheus.CounterVec
	EventsDropped      *prometheus.CounterVec
	DuplicateEvents    prometheus.Counter
	DispatchFailures   prometheus.Counter
	LegacyCorrelations prometheus.Counter
	InflightResponses  prometheus.Gauge
}

// NewMetrics registers the gateway metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "openagents",
			Name:      "events_total",
			Help:      "Total events accepted by ProcessEvent.",
		}),
		EventsByName: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openagents",
			Name:      "events_by_name_total",
			Help:      "Events accepted by ProcessEvent, per event name.",
		}, []string{"event_name"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openagents",
			Name:      "events_dropped_total",
			Help:      "Events dropped on per-agent queue overflow.",
		}, []string{"agent_id"}),
		DuplicateEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "openagents",
			Name:      "duplicate_events_total",
			Help:      "Replayed events ignored by the dedupe seen-set.",
		}),
		DispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "openagents",
			Name:      "mod_dispatch_failures_total",
			Help:      "Mod handler invocations that returned failure.",
		}),
		LegacyCorrelations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "openagents",
			Name:      "legacy_correlations_total",
			Help:      "Responses correlated via the deprecated payload request_id.",
		}),
		InflightResponses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "openagents",
			Name:      "inflight_responses",
			Help:      "Response slots currently awaiting resolution.",
		}),
	}
}
