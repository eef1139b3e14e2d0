// Package devicelistsvc keeps the device list up to date and serves it to
// clients via the portal.
package devicelistsvc

import (
	"context"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/masc-devices/devicelist"
	"github.com/lefinal/masc-devices/errors"
	"github.com/lefinal/masc-devices/event"
	"github.com/lefinal/masc-devices/portal"
	"github.com/lefinal/masc-devices/service"
	"github.com/lefinal/masc-devices/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"time"
)

// Topics.
const (
	// topicKnownChanged is used for notifying that known devices changed and
	// need to be reloaded.
	topicKnownChanged portal.Topic = portal.BaseTopic + "/devices/known/changed"
	// topicListRequest is used for requesting the current device list.
	topicListRequest portal.Topic = portal.BaseTopic + "/devices/list/request"
	// topicList is where the device list is published.
	topicList portal.Topic = portal.BaseTopic + "/devices/list"
	// topicSelect is used for selecting a device from the list.
	topicSelect portal.Topic = portal.BaseTopic + "/devices/select"
	// topicSelected is where selected devices are announced.
	topicSelected portal.Topic = portal.BaseTopic + "/devices/selected"
	// topicLastConnectedRequest is used for requesting the last connected
	// device.
	topicLastConnectedRequest portal.Topic = portal.BaseTopic + "/devices/last-connected/request"
	// topicLastConnected is where the last connected device is published.
	topicLastConnected portal.Topic = portal.BaseTopic + "/devices/last-connected"
	// topicError is where errors regarding device selection are published.
	topicError portal.Topic = portal.BaseTopic + "/devices/error"
)

// Store are the persistence dependencies needed for NewService.
type Store interface {
	// KnownDevices retrieves all previously paired devices.
	KnownDevices(ctx context.Context) ([]store.KnownDevice, error)
	// SetLastConnectedDevice remembers the given device as the one last
	// connected via cable.
	SetLastConnectedDevice(ctx context.Context, device store.LastConnectedDevice) error
	// LastConnectedDevice retrieves the device last connected via cable. If
	// none was stored, an errors.ErrNotFound error is returned.
	LastConnectedDevice(ctx context.Context) (store.LastConnectedDevice, error)
	// SetHasConnectedDevice remembers that any device was selected.
	SetHasConnectedDevice(ctx context.Context) error
	// HasConnectedDevice checks whether any device was selected before.
	HasConnectedDevice(ctx context.Context) (bool, error)
}

// deviceListService runs the devicelist.Reconciler against a devicelist.Stream
// and publishes each device list change.
type deviceListService struct {
	logger *zap.Logger
	// portal to use for communication.
	portal portal.Portal
	// store with all persistence dependencies.
	store Store
	// reconciler holds the current device list.
	reconciler *devicelist.Reconciler
	// stream is the discovery stream to run the reconciler with.
	stream devicelist.Stream
	// now returns the current time.
	now func() time.Time
}

// NewService creates a new service.Service ready to run.
func NewService(logger *zap.Logger, portal portal.Portal, store Store, reconciler *devicelist.Reconciler,
	stream devicelist.Stream) service.Service {
	return &deviceListService{
		logger:     logger,
		portal:     portal,
		store:      store,
		reconciler: reconciler,
		stream:     stream,
		now:        time.Now,
	}
}

// Run loads known devices, runs the reconciler and serves until the given
// context.Context is done.
func (s *deviceListService) Run(ctx context.Context) error {
	err := s.loadKnownDevices(ctx)
	if err != nil {
		return errors.Wrap(err, "initial load of known devices", nil)
	}
	eg, lifetime := errgroup.WithContext(ctx)
	// Reload known devices on change.
	knownChangedNewsletter := portal.Subscribe[event.EmptyEvent](lifetime, s.portal, topicKnownChanged)
	eg.Go(func() error {
		for range knownChangedNewsletter.Receive {
			err := s.loadKnownDevices(lifetime)
			if err != nil {
				errors.Log(s.logger, errors.Wrap(err, "reload known devices", nil))
			}
		}
		return nil
	})
	// Handle list requests.
	listRequestNewsletter := portal.Subscribe[event.EmptyEvent](lifetime, s.portal, topicListRequest)
	eg.Go(func() error {
		for range listRequestNewsletter.Receive {
			s.publishView(lifetime, s.reconciler.View())
		}
		return nil
	})
	// Handle selection.
	selectNewsletter := portal.Subscribe[event.SelectDeviceEvent](lifetime, s.portal, topicSelect)
	eg.Go(func() error {
		for e := range selectNewsletter.Receive {
			s.handleSelectDevice(lifetime, e.Payload)
		}
		return nil
	})
	// Handle last connected device requests.
	lastConnectedRequestNewsletter := portal.Subscribe[event.EmptyEvent](lifetime, s.portal, topicLastConnectedRequest)
	eg.Go(func() error {
		for range lastConnectedRequestNewsletter.Receive {
			s.handleLastConnectedRequest(lifetime)
		}
		return nil
	})
	// Publish each change.
	views := s.reconciler.Watch(lifetime)
	eg.Go(func() error {
		for view := range views {
			s.publishView(lifetime, view)
		}
		return nil
	})
	// Discover.
	eg.Go(func() error {
		err := s.reconciler.Run(lifetime, s.stream)
		if err != nil {
			return errors.Wrap(err, "run reconciler", nil)
		}
		if lifetime.Err() == nil {
			s.logger.Warn("discovery stream ended unexpectedly")
		}
		return nil
	})
	return eg.Wait()
}

// loadKnownDevices retrieves known devices from the Store and passes them to
// the reconciler.
func (s *deviceListService) loadKnownDevices(ctx context.Context) error {
	storedDevices, err := s.store.KnownDevices(ctx)
	if err != nil {
		return errors.Wrap(err, "known devices from store", nil)
	}
	known := make([]devicelist.KnownDevice, 0, len(storedDevices))
	for _, device := range storedDevices {
		known = append(known, devicelist.KnownDevice{
			ID:   device.ID,
			Name: device.Name,
		})
	}
	s.reconciler.SetKnownDevices(known)
	s.logger.Debug("loaded known devices", zap.Int("count", len(known)))
	return nil
}

// publishView publishes the given devicelist.View to topicList.
func (s *deviceListService) publishView(ctx context.Context, view devicelist.View) {
	s.portal.Publish(ctx, topicList, event.DeviceListEvent{View: view})
}

// handleSelectDevice handles topicSelect. Wired devices are remembered as last
// connected device. Storing failures are logged but do not prevent the
// selection.
func (s *deviceListService) handleSelectDevice(ctx context.Context, e event.SelectDeviceEvent) {
	record, ok := s.reconciler.Lookup(e.DeviceID)
	if !ok {
		err := errors.NewUnknownDeviceError(e.DeviceID)
		errors.Log(s.logger, err)
		s.portal.Publish(ctx, topicError, event.ErrorEventPayloadFromError(err))
		return
	}
	err := s.store.SetHasConnectedDevice(ctx)
	if err != nil {
		errors.Log(s.logger, errors.Wrap(err, "set has connected device", errors.Details{"device_id": record.ID}))
	}
	connectionType := event.ConnectionTypeBLE
	if record.Wired {
		connectionType = event.ConnectionTypeUSB
		err := s.store.SetLastConnectedDevice(ctx, store.LastConnectedDevice{
			DeviceID:    record.ID,
			Name:        record.Name,
			ModelID:     record.ModelID,
			Wired:       record.Wired,
			ConnectedAt: s.now(),
		})
		if err != nil {
			errors.Log(s.logger, errors.Wrap(err, "set last connected device", errors.Details{"device_id": record.ID}))
		}
	}
	s.logger.Debug("device selected",
		zap.String("device_id", record.ID),
		zap.String("connection_type", connectionType))
	s.portal.Publish(ctx, topicSelected, event.DeviceSelectedEvent{
		Device:         record,
		ConnectionType: connectionType,
	})
}

// handleLastConnectedRequest handles topicLastConnectedRequest by publishing
// the stored last connected device to topicLastConnected. Failures are
// published to topicError.
func (s *deviceListService) handleLastConnectedRequest(ctx context.Context) {
	hasConnected, err := s.store.HasConnectedDevice(ctx)
	if err != nil {
		err = errors.Wrap(err, "has connected device from store", nil)
		errors.Log(s.logger, err)
		s.portal.Publish(ctx, topicError, event.ErrorEventPayloadFromError(err))
		return
	}
	response := event.LastConnectedDeviceEvent{HasConnectedDevice: hasConnected}
	device, err := s.store.LastConnectedDevice(ctx)
	if e, _ := errors.Cast(err); err != nil && e.Code != errors.ErrNotFound {
		err = errors.Wrap(err, "last connected device from store", nil)
		errors.Log(s.logger, err)
		s.portal.Publish(ctx, topicError, event.ErrorEventPayloadFromError(err))
		return
	}
	if err == nil {
		response.DeviceID = nulls.NewString(device.DeviceID)
		response.Name = nulls.NewString(device.Name)
		response.ModelID = nulls.NewString(device.ModelID)
		response.ConnectedAt = nulls.NewTime(device.ConnectedAt)
	}
	s.portal.Publish(ctx, topicLastConnected, response)
}
