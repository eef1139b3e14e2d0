package metrics

import (
	"github.com/lefinal/masc-devices/devicelist"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"testing"
)

var _ devicelist.Observer = (*Metrics)(nil)

func TestMetrics_ObserveEvent(t *testing.T) {
	m := NewMetrics()
	m.ObserveEvent(devicelist.EventKindAdd, true)
	m.ObserveEvent(devicelist.EventKindAdd, false)
	m.ObserveEvent(devicelist.EventKindAdd, true)
	m.ObserveEvent(devicelist.EventKindRemove, true)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DiscoveryEventsTotal.WithLabelValues("add", resultApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiscoveryEventsTotal.WithLabelValues("add", resultNoop)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiscoveryEventsTotal.WithLabelValues("remove", resultApplied)))
}

func TestMetrics_ObserveDropped(t *testing.T) {
	m := NewMetrics()
	m.ObserveDropped()
	m.ObserveDropped()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DiscoveryEventsDroppedTotal))
}

func TestMetrics_ObserveView(t *testing.T) {
	m := NewMetrics()
	m.ObserveView(devicelist.View{
		Wireless: []devicelist.Record{{ID: "a"}, {ID: "b"}},
		Wired:    []devicelist.Record{{ID: "usb|c"}},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Listed.WithLabelValues(groupWired)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Listed.WithLabelValues(groupWireless)))
	m.ObserveView(devicelist.View{})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Listed.WithLabelValues(groupWired)))
}

func TestNewMetricsGather(t *testing.T) {
	m := NewMetrics()
	m.ObserveDropped()
	families, err := m.Registry.Gather()
	assert.NoError(t, err, "should gather")
	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	assert.Contains(t, names, "masc_devices_discovery_events_dropped_total")
}
