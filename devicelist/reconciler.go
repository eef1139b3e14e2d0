package devicelist

import (
	"context"
	"github.com/lefinal/masc-devices/errors"
	"go.uber.org/zap"
	"sync"
)

// Subscription is an active subscription to a Stream.
type Subscription interface {
	// Events receives discovery events in delivery order. The channel is closed
	// when the stream ends.
	Events() <-chan DiscoveryEvent
	// Unsubscribe releases the subscription and stops scanning. It is safe to
	// call it multiple times.
	Unsubscribe()
}

// Stream is a source of DiscoveryEvent.
type Stream interface {
	// Subscribe starts scanning for devices. Events are delivered until the
	// Subscription is released or the given context.Context is done.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Observer is notified about reconciliation activity. It is used for metrics.
type Observer interface {
	// ObserveEvent is called for each handled event. applied is false if the
	// event did not change the list.
	ObserveEvent(kind EventKind, applied bool)
	// ObserveDropped is called for events that were received after
	// cancellation.
	ObserveDropped()
	// ObserveView is called with each new View.
	ObserveView(view View)
}

type nopObserver struct{}

func (nopObserver) ObserveEvent(EventKind, bool) {}

func (nopObserver) ObserveDropped() {}

func (nopObserver) ObserveView(View) {}

// Reconciler owns the list of live records as well as the subscription to a
// Stream. The actual reconciliation is done using ApplyEvent and BuildView.
// Each change results in a new View being passed to all watchers.
type Reconciler struct {
	logger   *zap.Logger
	config   Config
	observer Observer
	// running is set while Run is active. Only one Run is allowed at a time as
	// it is the only writer for live.
	running bool
	// live holds all records from the current subscription.
	live []Record
	// known holds the current known devices.
	known []KnownDevice
	// view is the last built View.
	view View
	// watchers receive each new View.
	watchers map[*watcher]struct{}
	// m locks running, live, known, view and watchers.
	m sync.RWMutex
}

// watcher is a receiver of View updates. Only the latest View is kept if the
// receiver is slow.
type watcher struct {
	updates chan View
}

// offer the given View to the watcher. If the watcher did not pick up the
// previous one yet, it is replaced. Must only be called while holding the
// Reconciler lock.
func (w *watcher) offer(view View) {
	select {
	case w.updates <- view:
		return
	default:
	}
	// Discard stale view.
	select {
	case <-w.updates:
	default:
	}
	w.updates <- view
}

// NewReconciler creates a new Reconciler. Start it with Reconciler.Run. If the
// given Observer is nil, observations are discarded.
func NewReconciler(logger *zap.Logger, config Config, observer Observer) *Reconciler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Reconciler{
		logger:   logger,
		config:   config,
		observer: observer,
		live:     make([]Record, 0),
		known:    make([]KnownDevice, 0),
		view:     BuildView(nil, nil, config),
		watchers: make(map[*watcher]struct{}),
	}
}

// Run subscribes to the given Stream and applies all received events until the
// context.Context is done or the stream ends. The subscription is released
// when Run returns. Events that arrive after cancellation are dropped. Live
// records are cleared after the subscription ended.
func (r *Reconciler) Run(ctx context.Context, stream Stream) error {
	r.m.Lock()
	if r.running {
		r.m.Unlock()
		return errors.NewInternalError("reconciler already running", nil)
	}
	r.running = true
	r.m.Unlock()
	defer func() {
		r.m.Lock()
		r.running = false
		r.live = make([]Record, 0)
		r.publish()
		r.m.Unlock()
	}()
	sub, err := stream.Subscribe(ctx)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrCommunication,
			Kind:    errors.KindSubscribe,
			Err:     err,
			Message: "subscribe to discovery stream",
		}
	}
	defer sub.Unsubscribe()
	r.logger.Debug("subscribed to discovery stream")
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, more := <-events:
			if !more {
				r.logger.Debug("discovery stream ended")
				return nil
			}
			if ctx.Err() != nil {
				// Select picks randomly when both are ready.
				r.observer.ObserveDropped()
				return nil
			}
			r.apply(e)
		}
	}
}

// apply the given DiscoveryEvent to the live records and publish the new View
// if changed.
func (r *Reconciler) apply(e DiscoveryEvent) {
	r.m.Lock()
	updated := ApplyEvent(r.live, e, r.config)
	applied := len(updated) != len(r.live)
	if applied {
		r.live = updated
		r.publish()
	}
	r.m.Unlock()
	r.observer.ObserveEvent(e.Kind, applied)
	if applied {
		r.logger.Debug("applied discovery event",
			zap.String("kind", string(e.Kind)),
			zap.String("device_id", e.ID))
	}
}

// SetKnownDevices replaces the known devices and publishes the new View. The
// given slice is copied.
func (r *Reconciler) SetKnownDevices(known []KnownDevice) {
	knownCopy := make([]KnownDevice, len(known))
	copy(knownCopy, known)
	r.m.Lock()
	defer r.m.Unlock()
	r.known = knownCopy
	r.publish()
}

// publish builds the View and offers it to all watchers. Must only be called
// while holding the lock.
func (r *Reconciler) publish() {
	r.view = BuildView(r.live, r.known, r.config)
	r.observer.ObserveView(r.view)
	for w := range r.watchers {
		w.offer(r.view)
	}
}

// View returns the current View. It must not be modified.
func (r *Reconciler) View() View {
	r.m.RLock()
	defer r.m.RUnlock()
	return r.view
}

// Live returns a copy of the current live records.
func (r *Reconciler) Live() []Record {
	r.m.RLock()
	defer r.m.RUnlock()
	live := make([]Record, len(r.live))
	copy(live, r.live)
	return live
}

// Lookup searches the current View for the record with the given id.
func (r *Reconciler) Lookup(id string) (Record, bool) {
	return r.View().Lookup(id)
}

// Watch returns a channel that receives the current View immediately and each
// following change. If the receiver is slow, intermediate views are skipped.
// The channel is closed when the given context.Context is done.
func (r *Reconciler) Watch(ctx context.Context) <-chan View {
	w := &watcher{updates: make(chan View, 1)}
	r.m.Lock()
	r.watchers[w] = struct{}{}
	w.offer(r.view)
	r.m.Unlock()
	go func() {
		<-ctx.Done()
		r.m.Lock()
		delete(r.watchers, w)
		close(w.updates)
		r.m.Unlock()
	}()
	return w.updates
}
