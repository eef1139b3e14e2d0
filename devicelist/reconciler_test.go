package devicelist

import (
	"context"
	nativeerrors "errors"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/masc-devices/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sync"
	"testing"
	"time"
)

const timeout = 3 * time.Second

// streamStub mocks Stream.
type streamStub struct {
	mock.Mock
}

func (s *streamStub) Subscribe(ctx context.Context) (Subscription, error) {
	args := s.Called(ctx)
	sub, _ := args.Get(0).(Subscription)
	return sub, args.Error(1)
}

// subscriptionStub is a Subscription that forwards events from a channel.
type subscriptionStub struct {
	events       chan DiscoveryEvent
	unsubscribed *atomic.Bool
}

func newSubscriptionStub() *subscriptionStub {
	return &subscriptionStub{
		events:       make(chan DiscoveryEvent),
		unsubscribed: atomic.NewBool(false),
	}
}

func (s *subscriptionStub) Events() <-chan DiscoveryEvent {
	return s.events
}

func (s *subscriptionStub) Unsubscribe() {
	s.unsubscribed.Store(true)
}

// observerStub records observations.
type observerStub struct {
	applied   *atomic.Int32
	ignored   *atomic.Int32
	dropped   *atomic.Int32
	lastViewM sync.Mutex
	lastView  View
}

func newObserverStub() *observerStub {
	return &observerStub{
		applied: atomic.NewInt32(0),
		ignored: atomic.NewInt32(0),
		dropped: atomic.NewInt32(0),
	}
}

func (o *observerStub) ObserveEvent(_ EventKind, applied bool) {
	if applied {
		o.applied.Inc()
	} else {
		o.ignored.Inc()
	}
}

func (o *observerStub) ObserveDropped() {
	o.dropped.Inc()
}

func (o *observerStub) ObserveView(view View) {
	o.lastViewM.Lock()
	o.lastView = view
	o.lastViewM.Unlock()
}

// awaitView waits until a View matching the given condition is received.
func awaitView(ctx context.Context, t *testing.T, updates <-chan View, cond func(View) bool) View {
	for {
		select {
		case <-ctx.Done():
			require.FailNow(t, "timeout", "should receive expected view within timeout")
		case view, more := <-updates:
			require.True(t, more, "updates should not be closed")
			if cond(view) {
				return view
			}
		}
	}
}

func TestNewReconciler(t *testing.T) {
	logger := zap.New(zapcore.NewNopCore())
	r := NewReconciler(logger, Config{AlwaysShowWiredSection: true}, nil)
	require.NotNil(t, r)
	assert.Equal(t, logger, r.logger, "should set correct logger")
	assert.Equal(t, nopObserver{}, r.observer, "should default to nop observer")
	assert.Empty(t, r.Live(), "should have no live records")
	assert.True(t, r.View().ShowWiredSection, "should build initial view")
}

// reconcilerSuite tests Reconciler.
type reconcilerSuite struct {
	suite.Suite
	stream     *streamStub
	sub        *subscriptionStub
	observer   *observerStub
	reconciler *Reconciler
}

func (suite *reconcilerSuite) SetupTest() {
	suite.stream = &streamStub{}
	suite.sub = newSubscriptionStub()
	suite.observer = newObserverStub()
	suite.reconciler = NewReconciler(zap.New(zapcore.NewNopCore()), Config{}, suite.observer)
}

// run starts the reconciler and returns a function that waits until it
// finished.
func (suite *reconcilerSuite) run(ctx context.Context) func() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := suite.reconciler.Run(ctx, suite.stream)
		suite.NoError(err, "should not fail")
	}()
	return wg.Wait
}

func (suite *reconcilerSuite) TestApplyEvents() {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	suite.stream.On("Subscribe", mock.Anything).Return(suite.sub, nil).Once()
	defer suite.stream.AssertExpectations(suite.T())
	updates := suite.reconciler.Watch(timeout)
	runCtx, cancelRun := context.WithCancel(timeout)
	wait := suite.run(runCtx)
	suite.sub.events <- DiscoveryEvent{Kind: EventKindAdd, ID: "usb|1", Name: nulls.NewString("A")}
	suite.sub.events <- DiscoveryEvent{Kind: EventKindAdd, ID: "ble|1"}
	suite.sub.events <- DiscoveryEvent{Kind: EventKindAdd, ID: "ble|1"}
	view := awaitView(timeout, suite.T(), updates, func(view View) bool {
		return view.Len() == 2
	})
	suite.Equal([]Record{{ID: "usb|1", Name: "A", ModelID: DefaultFallbackModelID, Wired: true}}, view.Wired)
	suite.Equal([]Record{{ID: "ble|1", ModelID: DefaultFallbackModelID}}, view.Wireless)
	suite.sub.events <- DiscoveryEvent{Kind: EventKindRemove, ID: "usb|1"}
	view = awaitView(timeout, suite.T(), updates, func(view View) bool {
		return view.Len() == 1
	})
	suite.Empty(view.Wired, "should have removed wired device")
	suite.False(view.ShowWiredSection, "should hide wired section")
	cancelRun()
	wait()
	suite.EqualValues(3, suite.observer.applied.Load(), "should observe applied events")
	suite.EqualValues(1, suite.observer.ignored.Load(), "should observe duplicate add")
}

func (suite *reconcilerSuite) TestUnsubscribeOnCancel() {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	suite.stream.On("Subscribe", mock.Anything).Return(suite.sub, nil).Once()
	runCtx, cancelRun := context.WithCancel(timeout)
	wait := suite.run(runCtx)
	suite.sub.events <- DiscoveryEvent{Kind: EventKindAdd, ID: "usb|1"}
	cancelRun()
	wait()
	suite.True(suite.sub.unsubscribed.Load(), "should unsubscribe")
	suite.Empty(suite.reconciler.Live(), "should clear live records")
}

func (suite *reconcilerSuite) TestStreamEnd() {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	suite.stream.On("Subscribe", mock.Anything).Return(suite.sub, nil).Once()
	wait := suite.run(timeout)
	suite.sub.events <- DiscoveryEvent{Kind: EventKindAdd, ID: "usb|1"}
	close(suite.sub.events)
	wait()
	suite.NoError(timeout.Err(), "should not time out")
	suite.True(suite.sub.unsubscribed.Load(), "should unsubscribe")
}

func (suite *reconcilerSuite) TestDropAfterCancel() {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	sub := newSubscriptionStub()
	sub.events = make(chan DiscoveryEvent, 1)
	sub.events <- DiscoveryEvent{Kind: EventKindAdd, ID: "usb|1"}
	suite.stream.On("Subscribe", mock.Anything).Return(sub, nil).Once()
	runCtx, cancelRun := context.WithCancel(timeout)
	cancelRun()
	err := suite.reconciler.Run(runCtx, suite.stream)
	suite.NoError(err, "should not fail")
	suite.EqualValues(0, suite.observer.applied.Load(), "should not apply events after cancel")
	suite.Empty(suite.reconciler.Live(), "should not list device")
}

func (suite *reconcilerSuite) TestSubscribeFail() {
	suite.stream.On("Subscribe", mock.Anything).Return(nil, nativeerrors.New("sad life")).Once()
	err := suite.reconciler.Run(context.Background(), suite.stream)
	suite.Require().Error(err, "should fail")
	e, ok := errors.Cast(err)
	suite.True(ok, "should return rich error")
	suite.Equal(errors.ErrCommunication, e.Code, "should return communication error")
	suite.Equal(errors.KindSubscribe, e.Kind, "should return subscribe kind")
}

func (suite *reconcilerSuite) TestAlreadyRunning() {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	subscribed := make(chan struct{})
	suite.stream.On("Subscribe", mock.Anything).Return(suite.sub, nil).
		Run(func(_ mock.Arguments) { close(subscribed) }).Once()
	runCtx, cancelRun := context.WithCancel(timeout)
	wait := suite.run(runCtx)
	select {
	case <-timeout.Done():
		suite.FailNow("timeout", "should subscribe")
	case <-subscribed:
	}
	err := suite.reconciler.Run(timeout, suite.stream)
	suite.Error(err, "should fail when already running")
	cancelRun()
	wait()
	suite.stream.AssertExpectations(suite.T())
}

func (suite *reconcilerSuite) TestSetKnownDevices() {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	suite.stream.On("Subscribe", mock.Anything).Return(suite.sub, nil).Once()
	updates := suite.reconciler.Watch(timeout)
	runCtx, cancelRun := context.WithCancel(timeout)
	wait := suite.run(runCtx)
	known := []KnownDevice{
		{ID: "ble|1", Name: nulls.NewString("X")},
		{ID: "k2", Name: nulls.NewString("Y")},
	}
	suite.reconciler.SetKnownDevices(known)
	known[0].ID = "changed"
	suite.sub.events <- DiscoveryEvent{Kind: EventKindAdd, ID: "ble|1"}
	view := awaitView(timeout, suite.T(), updates, func(view View) bool {
		return len(view.Wireless) == 2 && view.Wireless[0].Name == ""
	})
	suite.Equal([]Record{
		{ID: "ble|1", ModelID: DefaultFallbackModelID},
		{ID: "k2", Name: "Y", ModelID: DefaultFallbackModelID},
	}, view.Wireless, "live device should shadow known one")
	cancelRun()
	wait()
	// Known devices stay after the subscription ended.
	suite.Equal([]Record{
		{ID: "ble|1", Name: "X", ModelID: DefaultFallbackModelID},
		{ID: "k2", Name: "Y", ModelID: DefaultFallbackModelID},
	}, suite.reconciler.View().Wireless)
	suite.observer.lastViewM.Lock()
	suite.Equal(suite.reconciler.View(), suite.observer.lastView, "should observe last view")
	suite.observer.lastViewM.Unlock()
}

func (suite *reconcilerSuite) TestLookup() {
	suite.reconciler.SetKnownDevices([]KnownDevice{{ID: "k1"}})
	record, ok := suite.reconciler.Lookup("k1")
	suite.True(ok, "should find known device")
	suite.Equal("k1", record.ID)
	_, ok = suite.reconciler.Lookup("k2")
	suite.False(ok, "should not find unknown device")
}

func (suite *reconcilerSuite) TestWatchClosedOnDone() {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	watchCtx, cancelWatch := context.WithCancel(timeout)
	updates := suite.reconciler.Watch(watchCtx)
	// Initial view.
	select {
	case <-timeout.Done():
		suite.FailNow("timeout", "should receive initial view")
	case _, more := <-updates:
		suite.True(more, "should receive initial view")
	}
	cancelWatch()
	select {
	case <-timeout.Done():
		suite.FailNow("timeout", "should close updates")
	case _, more := <-updates:
		suite.False(more, "should close updates")
	}
}

func (suite *reconcilerSuite) TestWatchLatestWins() {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	updates := suite.reconciler.Watch(timeout)
	for i := 0; i < 10; i++ {
		suite.reconciler.SetKnownDevices(make([]KnownDevice, i+1))
	}
	select {
	case <-timeout.Done():
		suite.FailNow("timeout", "should receive view")
	case view := <-updates:
		// All known devices have the same (empty) id and therefore collapse.
		suite.Len(view.Wireless, 1, "should receive latest view")
	}
	select {
	case <-updates:
		suite.Fail("should only keep latest view")
	default:
	}
}

func TestReconciler(t *testing.T) {
	suite.Run(t, new(reconcilerSuite))
}
