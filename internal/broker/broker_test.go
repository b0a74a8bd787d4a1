package broker_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openharmony/window-window-manager-sub028/internal/broker"
	"github.com/openharmony/window-window-manager-sub028/internal/broker/brokertest"
	"github.com/openharmony/window-window-manager-sub028/internal/locator"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func ping(t *testing.T, h remote.Handle) string {
	t.Helper()
	require.NotNil(t, h)
	d, ok := broker.AsDomain(h)
	require.True(t, ok, "not a domain handle: %s", h.Descriptor())
	label, err := d.Ping(context.Background())
	require.NoError(t, err)
	return label
}

// events records connection callbacks in order.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) connection(userID, screenID int32, connected bool) {
	e.add(fmt.Sprintf("%d/%d/%t", userID, screenID, connected))
}

func (e *events) add(s string) {
	e.mu.Lock()
	e.log = append(e.log, s)
	e.mu.Unlock()
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

func TestLocatorResolvesDomainThroughBroker(t *testing.T) {
	ctx := context.Background()
	w := brokertest.NewWorld(t, locator.VariantFull)
	require.NoError(t, w.Server.AddUser(ctx, 100, 0))

	l := w.Registry.Get(100)
	h := l.GetDomainProxy(ctx)
	assert.Equal(t, "user-100/gen-1", ping(t, h))
	assert.True(t, h.IsProxy())
	assert.Same(t, h, l.GetDomainProxy(ctx))

	listeners := w.Server.Bootstrap().Listeners()
	require.Len(t, listeners, 1)
	assert.Equal(t, int32(100), listeners[0].UserID)

	// The broker tells a listener that registers late that its user is
	// already connected.
	assert.Eventually(t, func() bool { return l.Connection().Connected }, waitFor, tick)
}

func TestUnknownUserIsUnavailable(t *testing.T) {
	ctx := context.Background()
	w := brokertest.NewWorld(t, locator.VariantFull)

	l := w.Registry.Get(300)
	assert.Nil(t, l.GetDomainProxy(ctx))
	assert.NotNil(t, l.Cached(locator.LayerBootstrap))
	assert.Nil(t, l.Cached(locator.LayerSession))
}

func TestRestartSessionRecoversLocator(t *testing.T) {
	ctx := context.Background()
	w := brokertest.NewWorld(t, locator.VariantFull)
	require.NoError(t, w.Server.AddUser(ctx, 100, 0))

	l := w.Registry.Get(100)
	recovered := make(chan struct{}, 1)
	require.NoError(t, l.RegisterRecoverListener(ctx, func() { recovered <- struct{}{} }))

	old := l.GetDomainProxy(ctx)
	require.Equal(t, "user-100/gen-1", ping(t, old))

	require.NoError(t, w.Server.RestartSession(ctx, 100))

	select {
	case <-recovered:
	case <-time.After(waitFor):
		t.Fatal("recover callback not called")
	}
	assert.Equal(t, "user-100/gen-2", ping(t, l.Cached(locator.LayerDomain)))

	_, err := old.Transact(ctx, remote.CodePing, remote.NewParcel())
	assert.ErrorIs(t, err, remote.ErrDeadObject, "unpublished objects are gone")
}

func TestSwitchUserNotifiesInOrder(t *testing.T) {
	ctx := context.Background()
	w := brokertest.NewWorld(t, locator.VariantFull)
	require.NoError(t, w.Server.AddUser(ctx, 100, 0))
	require.NoError(t, w.Server.AddUser(ctx, 200, 1))

	l := w.Registry.Default()
	ev := &events{}
	require.NoError(t, l.RegisterUserSwitchListener(func() { ev.add("switch") }))
	_, err := l.RegisterConnectionChangedListener(ctx, ev.connection)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(ev.all()) == 1 }, waitFor, tick)
	assert.Equal(t, "user-100/gen-1", ping(t, l.GetDomainProxy(ctx)))

	require.NoError(t, w.Server.SwitchUser(ctx, 200))

	assert.Equal(t, []string{"100/0/true", "100/0/false", "switch", "200/1/true"}, ev.all())
	assert.Equal(t, locator.ConnectionState{UserID: 200, ScreenID: 1, Connected: true}, l.Connection())
	assert.Equal(t, "user-200/gen-1", ping(t, l.Cached(locator.LayerDomain)))
}

func TestBrokerDeathClearsLocator(t *testing.T) {
	ctx := context.Background()
	w := brokertest.NewWorld(t, locator.VariantFull)
	require.NoError(t, w.Server.AddUser(ctx, 100, 0))

	l := w.Registry.Get(100)
	first := l.GetDomainProxy(ctx)
	require.NotNil(t, first)
	require.Equal(t, locator.RecoveryRegistered, l.RecoveryState())
	require.Eventually(t, func() bool { return l.Connection().Connected }, waitFor, tick)

	w.Endpoint.Stop()

	require.Eventually(t, func() bool {
		return l.RecoveryState() == locator.RecoveryUnregistered && !l.Connection().Connected
	}, waitFor, tick)
	assert.Nil(t, l.Cached(locator.LayerBootstrap))
	assert.Nil(t, l.Cached(locator.LayerSession))
	assert.Nil(t, l.Cached(locator.LayerDomain))

	w.StartBroker(t)
	require.NoError(t, w.Server.AddUser(ctx, 100, 0))

	second := l.GetDomainProxy(ctx)
	assert.Equal(t, "user-100/gen-1", ping(t, second))
	assert.NotSame(t, first, second)
	assert.Equal(t, locator.RecoveryRegistered, l.RecoveryState())
	assert.Len(t, w.Server.Bootstrap().Listeners(), 1)
}

func TestLiteLocatorThroughBroker(t *testing.T) {
	ctx := context.Background()
	w := brokertest.NewWorld(t, locator.VariantLite)
	require.NoError(t, w.Server.AddUser(ctx, 100, 0))

	l := w.Registry.Get(100)
	assert.Equal(t, "screen-lite", ping(t, l.GetScreenProxyLite(ctx)))
	assert.Equal(t, remote.DomainServiceLiteDescriptor, l.GetDomainProxyLite(ctx).Descriptor())

	listeners := w.Server.Bootstrap().Listeners()
	require.Len(t, listeners, 1)
	assert.True(t, listeners[0].Lite)
}

// sessionListener is a client-side session listener object.
type sessionListener struct{}

func (sessionListener) Descriptor() string { return remote.SessionListenerDescriptor }

func (sessionListener) OnRemoteRequest(_ context.Context, code uint32, _ *remote.Parcel) (*remote.Parcel, error) {
	return nil, fmt.Errorf("%w: %d", remote.ErrUnknownCode, code)
}

func TestSessionListenersSurviveSessionRestart(t *testing.T) {
	ctx := context.Background()
	w := brokertest.NewWorld(t, locator.VariantLite)
	require.NoError(t, w.Server.AddUser(ctx, 100, 0))

	l := w.Registry.Get(100)
	require.NoError(t, l.AddSessionListener(ctx, w.Client.Publish(sessionListener{})))

	listeners, err := w.Server.SessionListeners(100)
	require.NoError(t, err)
	require.Len(t, listeners, 1)
	assert.False(t, listeners[0].Recovered)
	assert.Equal(t, remote.SessionListenerDescriptor, listeners[0].Handle.Descriptor())

	require.NoError(t, w.Server.RestartSession(ctx, 100))

	require.Eventually(t, func() bool {
		listeners, err := w.Server.SessionListeners(100)
		return err == nil && len(listeners) == 1 && listeners[0].Recovered
	}, waitFor, tick)
	assert.Equal(t, "user-100/gen-2", ping(t, l.Cached(locator.LayerDomainLite)))
}
