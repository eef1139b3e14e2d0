package event

import (
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/masc-devices/devicelist"
)

// DiscoveryEventType is the type of DiscoveryEvent.
type DiscoveryEventType string

const (
	// DiscoveryEventTypeAdd is used when a device was discovered.
	DiscoveryEventTypeAdd DiscoveryEventType = "add"
	// DiscoveryEventTypeRemove is used when a device vanished.
	DiscoveryEventTypeRemove DiscoveryEventType = "remove"
)

// DiscoveryEvent is published by the discovery subsystem for each device that
// appears or disappears.
type DiscoveryEvent struct {
	// Type of the event.
	Type DiscoveryEventType `json:"type"`
	// ID is the transport-prefixed device id.
	ID string `json:"id"`
	// Name is the optional device name.
	Name nulls.String `json:"name"`
	// ModelID is the optional hardware model id.
	ModelID nulls.String `json:"model_id"`
}

// ScanStartEvent requests the discovery subsystem to start scanning.
type ScanStartEvent struct {
	// Transports to scan on. If empty, all transports are scanned.
	Transports []string `json:"transports"`
}

// DeviceListEvent holds the current device list ready for display.
type DeviceListEvent struct {
	devicelist.View
}

// SelectDeviceEvent is received when a client selects a device from the list.
type SelectDeviceEvent struct {
	// DeviceID is the id of the selected device.
	DeviceID string `json:"device_id"`
}

// Connection types for DeviceSelectedEvent.
const (
	ConnectionTypeUSB = "USB"
	ConnectionTypeBLE = "BLE"
)

// DeviceSelectedEvent is published after a device was selected.
type DeviceSelectedEvent struct {
	// Device is the selected device.
	Device devicelist.Record `json:"device"`
	// ConnectionType is either ConnectionTypeUSB or ConnectionTypeBLE.
	ConnectionType string `json:"connection_type"`
}

// LastConnectedDeviceEvent answers a request for the device that was last
// selected via cable. Device fields are null if no such device was stored yet.
type LastConnectedDeviceEvent struct {
	// HasConnectedDevice is whether any device was selected at least once.
	HasConnectedDevice bool `json:"has_connected_device"`
	// DeviceID is the id of the last connected device.
	DeviceID nulls.String `json:"device_id"`
	// Name is the device name at the time of selection.
	Name nulls.String `json:"name"`
	// ModelID is the hardware model id.
	ModelID nulls.String `json:"model_id"`
	// ConnectedAt is when the device was selected.
	ConnectedAt nulls.Time `json:"connected_at"`
}
