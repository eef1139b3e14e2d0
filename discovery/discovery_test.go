package discovery

import (
	"context"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/masc-devices/devicelist"
	"github.com/lefinal/masc-devices/event"
	"github.com/lefinal/masc-devices/portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"testing"
	"time"
)

const timeout = 3 * time.Second

func TestNewStream(t *testing.T) {
	logger := zap.New(zapcore.NewNopCore())
	portalStub := &portal.Stub{}
	s := NewStream(logger, portalStub, Config{})
	require.NotNil(t, s)
	assert.Equal(t, logger, s.logger, "should set correct logger")
	assert.Equal(t, portalStub, s.portal, "should set correct portal")
	assert.Nil(t, s.allowedTransports, "should allow all transports")
}

func TestToDiscoveryEvent(t *testing.T) {
	tests := []struct {
		name    string
		in      event.DiscoveryEvent
		want    devicelist.DiscoveryEvent
		wantErr bool
	}{
		{
			name: "add",
			in: event.DiscoveryEvent{
				Type:    event.DiscoveryEventTypeAdd,
				ID:      "usb|1",
				Name:    nulls.NewString("A"),
				ModelID: nulls.NewString("nanoS"),
			},
			want: devicelist.DiscoveryEvent{
				Kind:    devicelist.EventKindAdd,
				ID:      "usb|1",
				Name:    nulls.NewString("A"),
				ModelID: nulls.NewString("nanoS"),
			},
		},
		{
			name: "remove",
			in:   event.DiscoveryEvent{Type: event.DiscoveryEventTypeRemove, ID: "usb|1"},
			want: devicelist.DiscoveryEvent{Kind: devicelist.EventKindRemove, ID: "usb|1"},
		},
		{
			name:    "missing id",
			in:      event.DiscoveryEvent{Type: event.DiscoveryEventTypeAdd},
			wantErr: true,
		},
		{
			name:    "unknown type",
			in:      event.DiscoveryEvent{Type: "meow", ID: "usb|1"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toDiscoveryEvent(tt.in)
			if tt.wantErr {
				assert.Error(t, err, "should fail")
				return
			}
			require.NoError(t, err, "should not fail")
			assert.Equal(t, tt.want, got)
		})
	}
}

// streamSuite tests Stream.
type streamSuite struct {
	suite.Suite
	portalStub *portal.Stub
}

func (suite *streamSuite) SetupTest() {
	suite.portalStub = &portal.Stub{}
}

// subscribe creates a Stream with the given Config and subscribes. The
// returned channel is used for sending events.
func (suite *streamSuite) subscribe(ctx context.Context, config Config) (devicelist.Subscription, chan<- event.Event[any]) {
	s := NewStream(zap.New(zapcore.NewNopCore()), suite.portalStub, config)
	discoveryEvents := make(chan event.Event[any])
	suite.portalStub.On("Subscribe", mock.Anything, topicEvents).
		Return(portal.NewSelfClosingReceivingMockNewsletter(ctx, discoveryEvents)).Once()
	sub, err := s.Subscribe(ctx)
	suite.Require().NoError(err, "should not fail")
	return sub, discoveryEvents
}

func (suite *streamSuite) TestRequestScan() {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	suite.portalStub.On("Publish", mock.Anything, topicScanStart, event.ScanStartEvent{
		Transports: []string{"usb", "ble"},
	}).Once()
	suite.portalStub.On("Publish", mock.Anything, topicScanStop, event.EmptyEvent{}).Once()
	defer suite.portalStub.AssertExpectations(suite.T())
	sub, _ := suite.subscribe(timeout, Config{Transports: []string{"usb", "ble"}})
	sub.Unsubscribe()
	// Unsubscribing again should not request stop again.
	sub.Unsubscribe()
	select {
	case <-timeout.Done():
		suite.Fail("timeout", "should close events")
	case _, more := <-sub.Events():
		suite.False(more, "should close events")
	}
}

func (suite *streamSuite) TestForwardEvents() {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	suite.portalStub.On("Publish", mock.Anything, mock.Anything, mock.Anything)
	sub, discoveryEvents := suite.subscribe(timeout, Config{Transports: []string{"usb"}})
	defer sub.Unsubscribe()
	go func() {
		for _, e := range []event.DiscoveryEvent{
			{Type: event.DiscoveryEventTypeAdd, ID: "ble|1"},
			{Type: "meow", ID: "usb|1"},
			{Type: event.DiscoveryEventTypeAdd, ID: "usb|1", Name: nulls.NewString("A")},
			{Type: event.DiscoveryEventTypeRemove, ID: "usb|1"},
		} {
			select {
			case <-timeout.Done():
				return
			case discoveryEvents <- event.Event[any]{Payload: e}:
			}
		}
	}()
	expected := []devicelist.DiscoveryEvent{
		{Kind: devicelist.EventKindAdd, ID: "usb|1", Name: nulls.NewString("A")},
		{Kind: devicelist.EventKindRemove, ID: "usb|1"},
	}
	for _, want := range expected {
		select {
		case <-timeout.Done():
			suite.FailNow("timeout", "should receive event")
		case got := <-sub.Events():
			suite.Equal(want, got, "should forward filtered events in order")
		}
	}
}

func (suite *streamSuite) TestSubscribeWithDoneContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewStream(zap.New(zapcore.NewNopCore()), suite.portalStub, Config{})
	_, err := s.Subscribe(ctx)
	suite.Error(err, "should fail")
	suite.portalStub.AssertNotCalled(suite.T(), "Subscribe", mock.Anything, mock.Anything)
}

func TestStream(t *testing.T) {
	suite.Run(t, new(streamSuite))
}
