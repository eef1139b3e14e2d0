// Package metrics provides the Prometheus registry and meters for device list
// reconciliation.
package metrics

import (
	"github.com/lefinal/masc-devices/devicelist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	resultApplied = "applied"
	resultNoop    = "noop"
	groupWired    = "wired"
	groupWireless = "wireless"
)

// Metrics holds the Prometheus metrics registry and device list meters. It
// implements devicelist.Observer.
type Metrics struct {
	Registry *prometheus.Registry
	// DiscoveryEventsTotal counts handled discovery events by kind and result.
	DiscoveryEventsTotal *prometheus.CounterVec
	// DiscoveryEventsDroppedTotal counts events received after cancellation.
	DiscoveryEventsDroppedTotal prometheus.Counter
	// Listed is the number of listed devices by group.
	Listed *prometheus.GaugeVec
}

// NewMetrics creates a custom Prometheus registry with device list metrics as
// well as Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "masc_devices_discovery_events_total",
		Help: "Total number of handled discovery events.",
	}, []string{"kind", "result"})

	droppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "masc_devices_discovery_events_dropped_total",
		Help: "Total number of discovery events dropped after the subscription ended.",
	})

	listed := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "masc_devices_listed",
		Help: "Number of currently listed devices.",
	}, []string{"group"})

	reg.MustRegister(eventsTotal, droppedTotal, listed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Metrics{
		Registry:                    reg,
		DiscoveryEventsTotal:        eventsTotal,
		DiscoveryEventsDroppedTotal: droppedTotal,
		Listed:                      listed,
	}
}

// ObserveEvent counts the event with its result.
func (m *Metrics) ObserveEvent(kind devicelist.EventKind, applied bool) {
	result := resultNoop
	if applied {
		result = resultApplied
	}
	m.DiscoveryEventsTotal.WithLabelValues(string(kind), result).Inc()
}

// ObserveDropped counts a dropped event.
func (m *Metrics) ObserveDropped() {
	m.DiscoveryEventsDroppedTotal.Inc()
}

// ObserveView updates the listed gauges.
func (m *Metrics) ObserveView(view devicelist.View) {
	m.Listed.WithLabelValues(groupWired).Set(float64(len(view.Wired)))
	m.Listed.WithLabelValues(groupWireless).Set(float64(len(view.Wireless)))
}
