package event

import (
	"encoding/json"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/masc-devices/devicelist"
	"github.com/lefinal/masc-devices/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestErrorEventPayloadFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorEventPayload
	}{
		{
			name: "internal masked",
			err:  errors.NewInternalError("db exploded", errors.Details{"secret": "yes"}),
			want: ErrorEventPayload{
				Code:    string(errors.ErrInternal),
				Message: "internal server error",
			},
		},
		{
			name: "user error",
			err:  errors.NewUnknownDeviceError("usb|1"),
			want: ErrorEventPayload{
				Code:    string(errors.ErrNotFound),
				Kind:    string(errors.KindUnknownDevice),
				Err:     "unknown device",
				Message: "unknown device",
				Details: errors.Details{"device_id": "usb|1"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorEventPayloadFromError(tt.err))
		})
	}
}

func TestDiscoveryEventJSON(t *testing.T) {
	var e DiscoveryEvent
	err := json.Unmarshal([]byte(`{"type":"add","id":"usb|1","name":null,"model_id":"nanoS"}`), &e)
	require.NoError(t, err, "should parse")
	assert.Equal(t, DiscoveryEvent{
		Type:    DiscoveryEventTypeAdd,
		ID:      "usb|1",
		ModelID: nulls.NewString("nanoS"),
	}, e)
}

func TestDeviceListEventJSON(t *testing.T) {
	raw, err := json.Marshal(DeviceListEvent{View: devicelist.View{
		Wireless: []devicelist.Record{},
		Wired:    []devicelist.Record{{ID: "usb|1", ModelID: "nanoX", Wired: true}},
	}})
	require.NoError(t, err, "should marshal")
	assert.JSONEq(t, `{
		"wireless": [],
		"wired": [{"id": "usb|1", "name": "", "model_id": "nanoX", "wired": true}],
		"show_wired_section": false
	}`, string(raw))
}
