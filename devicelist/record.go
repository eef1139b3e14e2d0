// Package devicelist keeps the list of currently selectable devices. It
// combines devices announced by a live discovery stream with devices that were
// paired before and classifies them as wired or wireless.
package devicelist

import (
	"github.com/gobuffalo/nulls"
	"strings"
)

// Id prefixes of the transports we know about.
const (
	// USBPrefix is used by devices connected via USB. These are always wired.
	USBPrefix = "usb|"
	// DebugPrefix is used by devices behind the HTTP debug transport. Whether
	// they are treated as wired is decided by Config.DebugTransportWired.
	DebugPrefix = "httpdebug|"
)

// DefaultFallbackModelID is the model id to use when neither the event nor the
// Config provide one.
const DefaultFallbackModelID = "nanoX"

// Config holds options for classifying and defaulting records.
type Config struct {
	// FallbackModelID is used for records without a model id. If empty,
	// DefaultFallbackModelID is used.
	FallbackModelID string
	// DebugTransportWired forces devices with DebugPrefix to be wired.
	DebugTransportWired bool
	// AlwaysShowWiredSection makes View.ShowWiredSection always true. Some
	// platforms support USB even when no wired device is currently present.
	AlwaysShowWiredSection bool
}

// fallbackModelID returns Config.FallbackModelID or DefaultFallbackModelID if
// not set.
func (c Config) fallbackModelID() string {
	if c.FallbackModelID == "" {
		return DefaultFallbackModelID
	}
	return c.FallbackModelID
}

// Record is a selectable device.
type Record struct {
	// ID is the unique id of the device within a session. It is prefixed with
	// the transport the device was found on.
	ID string `json:"id"`
	// Name is the human-readable name. Might be empty.
	Name string `json:"name"`
	// ModelID is the hardware model identifier.
	ModelID string `json:"model_id"`
	// Wired describes whether the device is connected via cable. This is derived
	// from ID.
	Wired bool `json:"wired"`
}

// KnownDevice is a device that was paired before.
type KnownDevice struct {
	// ID of the device.
	ID string
	// Name is the optional stored name.
	Name nulls.String
}

// EventKind is the kind of DiscoveryEvent.
type EventKind string

const (
	// EventKindAdd is used when a device appeared.
	EventKindAdd EventKind = "add"
	// EventKindRemove is used when a device disappeared.
	EventKindRemove EventKind = "remove"
)

// DiscoveryEvent is emitted by a discovery stream when a device appears or
// disappears.
type DiscoveryEvent struct {
	// Kind is the event kind.
	Kind EventKind
	// ID of the device the event is about.
	ID string
	// Name is the optional device name. Only used for EventKindAdd.
	Name nulls.String
	// ModelID is the optional model id. Only used for EventKindAdd.
	ModelID nulls.String
}

// IsWired classifies the given device id. Ids with USBPrefix are wired. Ids
// with DebugPrefix are wired if debugTransportWired is set. Everything else is
// wireless.
func IsWired(id string, debugTransportWired bool) bool {
	switch {
	case strings.HasPrefix(id, USBPrefix):
		return true
	case strings.HasPrefix(id, DebugPrefix):
		return debugTransportWired
	default:
		return false
	}
}

// Transport returns the transport part of the given device id which is
// everything before the first pipe. If the id has no transport prefix, an empty
// string is returned.
func Transport(id string) string {
	i := strings.Index(id, "|")
	if i < 0 {
		return ""
	}
	return id[:i]
}
