// Package discovery provides a devicelist.Stream that receives discovery events
// over the portal. Scanning is requested when subscribing and stopped when
// unsubscribing.
package discovery

import (
	"context"
	"fmt"
	"github.com/lefinal/masc-devices/devicelist"
	"github.com/lefinal/masc-devices/errors"
	"github.com/lefinal/masc-devices/event"
	"github.com/lefinal/masc-devices/portal"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Topics.
const (
	// topicEvents is where the discovery subsystem publishes
	// event.DiscoveryEvent.
	topicEvents portal.Topic = portal.BaseTopic + "/discovery/events"
	// topicScanStart is used for requesting scanning with event.ScanStartEvent.
	topicScanStart portal.Topic = portal.BaseTopic + "/discovery/scan/start"
	// topicScanStop is used for stopping scanning.
	topicScanStop portal.Topic = portal.BaseTopic + "/discovery/scan/stop"
)

// scanStopTimeout is the timeout for publishing the scan stop request. We do
// not use the subscription context as it is most likely done already.
const scanStopTimeout = 3 * time.Second

// Config for Stream.
type Config struct {
	// Transports to use. If empty, devices from all transports are accepted.
	// Otherwise, devices with other transport prefixes are ignored.
	Transports []string
}

// Stream implements devicelist.Stream.
type Stream struct {
	logger *zap.Logger
	portal portal.Portal
	config Config
	// allowedTransports is the set of Config.Transports. Nil if all are allowed.
	allowedTransports map[string]struct{}
}

// NewStream creates a new Stream that uses the given portal.Portal.
func NewStream(logger *zap.Logger, portal portal.Portal, config Config) *Stream {
	var allowedTransports map[string]struct{}
	if len(config.Transports) > 0 {
		allowedTransports = make(map[string]struct{}, len(config.Transports))
		for _, transport := range config.Transports {
			allowedTransports[transport] = struct{}{}
		}
	}
	return &Stream{
		logger:            logger,
		portal:            portal,
		config:            config,
		allowedTransports: allowedTransports,
	}
}

// subscription implements devicelist.Subscription.
type subscription struct {
	events chan devicelist.DiscoveryEvent
	// stop cancels the subscription lifetime and stops scanning.
	stop     func()
	stopOnce sync.Once
}

// Events returns the channel for discovery events.
func (sub *subscription) Events() <-chan devicelist.DiscoveryEvent {
	return sub.events
}

// Unsubscribe stops scanning and closes the events channel.
func (sub *subscription) Unsubscribe() {
	sub.stopOnce.Do(sub.stop)
}

// Subscribe to discovery events and request scanning. The subscription ends
// when Unsubscribe is called or the given context.Context is done.
func (s *Stream) Subscribe(ctx context.Context) (devicelist.Subscription, error) {
	if ctx.Err() != nil {
		return nil, errors.Error{
			Code:    errors.ErrAborted,
			Err:     ctx.Err(),
			Message: "context done",
		}
	}
	lifetime, cancel := context.WithCancel(ctx)
	// Subscribe first in order to not miss any events after requesting a scan.
	newsletter := portal.Subscribe[event.DiscoveryEvent](lifetime, s.portal, topicEvents)
	sub := &subscription{
		events: make(chan devicelist.DiscoveryEvent),
		stop: func() {
			newsletter.Unsubscribe()
			cancel()
			stopCtx, cancelStop := context.WithTimeout(context.Background(), scanStopTimeout)
			defer cancelStop()
			s.portal.Publish(stopCtx, topicScanStop, event.EmptyEvent{})
			s.logger.Debug("requested scan stop")
		},
	}
	go func() {
		defer close(sub.events)
		for {
			var e event.Event[event.DiscoveryEvent]
			var more bool
			select {
			case <-lifetime.Done():
				return
			case e, more = <-newsletter.Receive:
				if !more {
					return
				}
			}
			discoveryEvent, err := toDiscoveryEvent(e.Payload)
			if err != nil {
				errors.Log(s.logger, errors.Wrap(err, "invalid discovery event", nil))
				continue
			}
			if !s.acceptsTransport(discoveryEvent.ID) {
				continue
			}
			select {
			case <-lifetime.Done():
				return
			case sub.events <- discoveryEvent:
			}
		}
	}()
	s.portal.Publish(ctx, topicScanStart, event.ScanStartEvent{Transports: s.config.Transports})
	s.logger.Debug("requested scan start", zap.Strings("transports", s.config.Transports))
	return sub, nil
}

// acceptsTransport checks whether the transport of the given device id is
// allowed.
func (s *Stream) acceptsTransport(deviceID string) bool {
	if s.allowedTransports == nil {
		return true
	}
	_, ok := s.allowedTransports[devicelist.Transport(deviceID)]
	return ok
}

// toDiscoveryEvent converts the given event.DiscoveryEvent to a
// devicelist.DiscoveryEvent.
func toDiscoveryEvent(e event.DiscoveryEvent) (devicelist.DiscoveryEvent, error) {
	if e.ID == "" {
		return devicelist.DiscoveryEvent{}, errors.Error{
			Code:    errors.ErrBadRequest,
			Message: "missing device id",
			Details: errors.Details{"type": e.Type},
		}
	}
	var kind devicelist.EventKind
	switch e.Type {
	case event.DiscoveryEventTypeAdd:
		kind = devicelist.EventKindAdd
	case event.DiscoveryEventTypeRemove:
		kind = devicelist.EventKindRemove
	default:
		return devicelist.DiscoveryEvent{}, errors.Error{
			Code:    errors.ErrBadRequest,
			Message: fmt.Sprintf("unsupported discovery event type: %s", e.Type),
			Details: errors.Details{"device_id": e.ID},
		}
	}
	return devicelist.DiscoveryEvent{
		Kind:    kind,
		ID:      e.ID,
		Name:    e.Name,
		ModelID: e.ModelID,
	}, nil
}
