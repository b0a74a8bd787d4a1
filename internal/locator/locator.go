package locator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/logging"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/monitoring"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// Backend is how a locator reaches brokers.
type Backend interface {
	// Registry returns the service registry.
	Registry(ctx context.Context) (remote.Registry, error)
	// BootstrapBroker casts h to the bootstrap broker interface.
	BootstrapBroker(h remote.Handle) (remote.BootstrapBroker, bool)
	// SessionBroker casts h to the session broker interface.
	SessionBroker(h remote.Handle) (remote.SessionBroker, bool)
	// Publish makes stub reachable by brokers.
	Publish(stub remote.Stub) (remote.Handle, error)
}

// ConnectionState is the locator's view of its user's session.
type ConnectionState struct {
	UserID    int32 `json:"user_id"`
	ScreenID  int32 `json:"screen_id"`
	Connected bool  `json:"connected"`
}

// ConnectionChangedFunc observes a user connecting or disconnecting.
type ConnectionChangedFunc func(userID, screenID int32, connected bool)

// Locator resolves and caches the handles one user's process needs to reach
// the window manager, and keeps them valid across remote deaths, broker
// recovery and user switches.
//
// Callbacks run on the goroutine delivering the event, some of them under a
// locator lock. They must not block and must not call back into the same
// locator.
//
// Lock order: connMu, then cache slot locks one at a time root-first.
// The recovery listener's lock is never held while taking either, and the
// session listener table's lock is never held across a remote call.
type Locator struct {
	userID  int32
	variant Variant
	backend Backend
	logger  *zap.Logger
	metrics *monitoring.Metrics

	chain    *Chain
	recovery *RecoveryListener

	connMu sync.Mutex
	conn   ConnectionState

	onConnection guarded[ConnectionChangedFunc]
	onUserSwitch guarded[func()]
	onRecover    guarded[func()]

	sessionListeners sessionListeners
}

// New creates a locator for userID. Nothing remote happens until the first
// proxy is requested or a listener registered.
func New(userID int32, variant Variant, backend Backend, logger *zap.Logger, metrics *monitoring.Metrics) *Locator {
	logger = logging.OrNop(logger).Named("locator").With(
		zap.Int32("user_id", userID),
		zap.Stringer("variant", variant),
	)

	l := &Locator{
		userID:  userID,
		variant: variant,
		backend: backend,
		logger:  logger,
		metrics: metrics,
		conn:    ConnectionState{UserID: remote.InvalidUserID, ScreenID: remote.DefaultScreenID},
	}

	chain, err := NewChain(l.layers(), NewProxyCache(), logger, metrics)
	if err != nil {
		// unreachable: layers() is fixed per variant
		panic(err)
	}
	chain.fetched = l.layerFetched
	chain.died = l.layerDied
	l.chain = chain

	l.recovery = newRecoveryListener(userID, variant.Lite(), backend.Publish, l, logger, metrics)
	return l
}

func (l *Locator) layers() []LayerSpec {
	specs := []LayerSpec{
		{ID: LayerBootstrap, Parent: LayerBootstrap, Fetch: l.fetchBootstrap},
		{ID: LayerSession, Parent: LayerBootstrap, Fetch: l.fetchSession},
	}
	if l.variant.Lite() {
		return append(specs,
			LayerSpec{ID: LayerDomainLite, Parent: LayerSession, Fetch: l.fetchDomainLite},
			LayerSpec{ID: LayerScreenLite, Parent: LayerBootstrap, Fetch: l.fetchScreenLite},
		)
	}
	return append(specs, LayerSpec{ID: LayerDomain, Parent: LayerSession, Fetch: l.fetchDomain})
}

func (l *Locator) fetchBootstrap(ctx context.Context, _ remote.Handle) (remote.Handle, error) {
	reg, err := l.backend.Registry(ctx)
	if err != nil {
		return nil, err
	}
	h, err := reg.Resolve(ctx, remote.WindowManagerServiceID)
	if err != nil {
		return nil, fmt.Errorf("resolve bootstrap broker: %w", err)
	}
	if _, ok := l.backend.BootstrapBroker(h); !ok {
		return nil, fmt.Errorf("%w: service %d is not a bootstrap broker", remote.ErrUnavailable, remote.WindowManagerServiceID)
	}
	return h, nil
}

func (l *Locator) fetchSession(ctx context.Context, parent remote.Handle) (remote.Handle, error) {
	bb, ok := l.backend.BootstrapBroker(parent)
	if !ok {
		return nil, fmt.Errorf("%w: bootstrap broker cast failed", remote.ErrUnavailable)
	}
	h, err := bb.GetSessionBroker(ctx, l.userID)
	if err != nil {
		return nil, fmt.Errorf("get session broker: %w", err)
	}
	if _, ok := l.backend.SessionBroker(h); !ok {
		return nil, fmt.Errorf("%w: no session broker for user %d", remote.ErrUnavailable, l.userID)
	}
	return h, nil
}

func (l *Locator) fetchDomain(ctx context.Context, parent remote.Handle) (remote.Handle, error) {
	sb, ok := l.backend.SessionBroker(parent)
	if !ok {
		return nil, fmt.Errorf("%w: session broker cast failed", remote.ErrUnavailable)
	}
	h, err := sb.GetDomainProxy(ctx)
	if err != nil {
		return nil, fmt.Errorf("get domain proxy: %w", err)
	}
	return expect(h, remote.DomainServiceDescriptor)
}

func (l *Locator) fetchDomainLite(ctx context.Context, parent remote.Handle) (remote.Handle, error) {
	sb, ok := l.backend.SessionBroker(parent)
	if !ok {
		return nil, fmt.Errorf("%w: session broker cast failed", remote.ErrUnavailable)
	}
	h, err := sb.GetDomainProxyLite(ctx)
	if err != nil {
		return nil, fmt.Errorf("get domain proxy lite: %w", err)
	}
	return expect(h, remote.DomainServiceLiteDescriptor)
}

func (l *Locator) fetchScreenLite(ctx context.Context, parent remote.Handle) (remote.Handle, error) {
	bb, ok := l.backend.BootstrapBroker(parent)
	if !ok {
		return nil, fmt.Errorf("%w: bootstrap broker cast failed", remote.ErrUnavailable)
	}
	h, err := bb.GetScreenBrokerLite(ctx)
	if err != nil {
		return nil, fmt.Errorf("get screen broker lite: %w", err)
	}
	return expect(h, remote.ScreenBrokerLiteDescriptor)
}

// expect is the remote cast for layers without a typed client.
func expect(h remote.Handle, descriptor string) (remote.Handle, error) {
	if h == nil || h.Descriptor() != descriptor {
		return nil, fmt.Errorf("%w: expected %s", remote.ErrUnavailable, descriptor)
	}
	return h, nil
}

// layerFetched registers the recover listener with a freshly resolved
// bootstrap broker.
func (l *Locator) layerFetched(ctx context.Context, layer LayerID, h remote.Handle) {
	if layer != l.chain.Root() {
		return
	}
	if err := l.registerRecovery(ctx, h); err != nil {
		l.logger.Warn("Recover listener registration failed", zap.Error(err))
	}
}

// layerDied applies what a death means beyond cache invalidation. A dead
// bootstrap broker takes the recover registration and the active
// connection with it, unless a caller already registered with its
// successor.
func (l *Locator) layerDied(layer LayerID, h remote.Handle) {
	if layer != l.chain.Root() {
		return
	}
	if !l.recovery.markUnregistered(h) {
		l.logger.Debug("Recover listener already registered with a new broker")
		return
	}

	l.connMu.Lock()
	l.conn.Connected = false
	l.connMu.Unlock()
}

func (l *Locator) registerRecovery(ctx context.Context, root remote.Handle) error {
	bb, ok := l.backend.BootstrapBroker(root)
	if !ok {
		return fmt.Errorf("%w: bootstrap broker cast failed", remote.ErrUnavailable)
	}
	return l.recovery.Register(ctx, bb)
}

// ensureRecovery resolves the bootstrap broker and registers the recover
// listener with it.
func (l *Locator) ensureRecovery(ctx context.Context) error {
	root := l.chain.Get(ctx, l.chain.Root())
	if root == nil {
		return fmt.Errorf("%w: bootstrap broker", remote.ErrUnavailable)
	}
	return l.registerRecovery(ctx, root)
}

// UserID returns the user the locator was created for.
func (l *Locator) UserID() int32 { return l.userID }

// Variant returns the locator variant.
func (l *Locator) Variant() Variant { return l.variant }

// RecoveryState returns the recover listener's registration state.
func (l *Locator) RecoveryState() RecoveryState { return l.recovery.State() }

// Connection returns a snapshot of the connection state.
func (l *Locator) Connection() ConnectionState {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	return l.conn
}

// GetProxy returns the handle of layer, bootstrapping missing hops. It
// returns nil when the layer is unavailable or not part of this variant.
func (l *Locator) GetProxy(ctx context.Context, layer LayerID) remote.Handle {
	return l.chain.Get(ctx, layer)
}

// Cached returns the handle cached for layer without any remote call.
func (l *Locator) Cached(layer LayerID) remote.Handle {
	if !l.chain.Has(layer) {
		return nil
	}
	return l.chain.cache.Load(layer)
}

// GetSessionProxy returns the session broker.
func (l *Locator) GetSessionProxy(ctx context.Context) remote.Handle {
	return l.chain.Get(ctx, LayerSession)
}

// GetDomainProxy returns the domain service. Lite locators return nil.
func (l *Locator) GetDomainProxy(ctx context.Context) remote.Handle {
	return l.chain.Get(ctx, LayerDomain)
}

// GetDomainProxyLite returns the lite domain service. Full locators return
// nil.
func (l *Locator) GetDomainProxyLite(ctx context.Context) remote.Handle {
	return l.chain.Get(ctx, LayerDomainLite)
}

// GetScreenProxyLite returns the lite screen broker. Full locators return
// nil.
func (l *Locator) GetScreenProxyLite(ctx context.Context) remote.Handle {
	return l.chain.Get(ctx, LayerScreenLite)
}

// Clear drops every cached handle and its death registration. The recover
// listener stays registered.
func (l *Locator) Clear() {
	l.chain.ClearAll()
	l.logger.Debug("Cache cleared")
}

// RegisterConnectionChangedListener sets the connection callback, replacing
// any previous one, and makes sure the recover listener is registered so
// pushes arrive. When the user is already connected cb is called with the
// current state before this returns, and replayed is true.
//
// The callback stays set when the broker cannot be reached; the error then
// wraps remote.ErrUnavailable.
func (l *Locator) RegisterConnectionChangedListener(ctx context.Context, cb ConnectionChangedFunc) (replayed bool, err error) {
	if cb == nil {
		return false, fmt.Errorf("%w: nil connection listener", remote.ErrInvalidArgument)
	}

	l.connMu.Lock()
	l.onConnection.set(cb)
	if l.conn.Connected && l.conn.UserID > remote.InvalidUserID {
		l.notify(l.conn.UserID, l.conn.ScreenID, true)
		replayed = true
	}
	l.connMu.Unlock()
	l.logger.Debug("Connection listener registered", zap.Bool("replayed", replayed))

	return replayed, l.ensureRecovery(ctx)
}

// UnregisterConnectionChangedListener drops the connection callback,
// unregisters the recover listener and forgets the bootstrap broker.
func (l *Locator) UnregisterConnectionChangedListener(ctx context.Context) error {
	l.onConnection.reset()
	err := l.recovery.Unregister(ctx)
	l.chain.cache.Clear(l.chain.Root())
	l.logger.Debug("Connection listener unregistered")
	return err
}

// RegisterUserSwitchListener sets the callback run after a user switch
// re-resolved the domain layer.
func (l *Locator) RegisterUserSwitchListener(cb func()) error {
	if cb == nil {
		return fmt.Errorf("%w: nil user switch listener", remote.ErrInvalidArgument)
	}
	l.onUserSwitch.set(cb)
	return nil
}

// RegisterRecoverListener sets the callback run after ServiceRecovered and
// makes sure the recover listener is registered with the broker.
func (l *Locator) RegisterRecoverListener(ctx context.Context, cb func()) error {
	if cb == nil {
		return fmt.Errorf("%w: nil recover listener", remote.ErrInvalidArgument)
	}
	l.onRecover.set(cb)
	return l.ensureRecovery(ctx)
}

// notify delivers one connection event to the connection callback.
func (l *Locator) notify(userID, screenID int32, connected bool) {
	kind := monitoring.KindDisconnect
	if connected {
		kind = monitoring.KindConnect
	}
	if l.onConnection.call(func(cb ConnectionChangedFunc) { cb(userID, screenID, connected) }) {
		l.metrics.RecordConnectionChange(kind)
	}
}

// onServiceRecovered replaces everything below the live bootstrap broker
// with the pushed session broker and re-resolves the domain layer.
func (l *Locator) onServiceRecovered(ctx context.Context, sessionBroker remote.Handle) {
	l.logger.Info("Service recovered", zap.Bool("session_broker", sessionBroker != nil))

	l.reseed(ctx, sessionBroker)
	l.metrics.IncRecoveries()
	l.onRecover.call(func(cb func()) { cb() })
}

// reseed clears everything below the bootstrap broker, installs
// sessionBroker when it is one and resolves the primary domain layer. A
// lite locator then registers its saved session listeners with the new
// lite domain service.
func (l *Locator) reseed(ctx context.Context, sessionBroker remote.Handle) {
	l.chain.ClearBelow(l.chain.Root())
	if _, ok := l.backend.SessionBroker(sessionBroker); ok {
		if err := l.chain.Install(LayerSession, sessionBroker); err != nil {
			l.logger.Warn("Pushed session broker not installed", zap.Error(err))
		}
	}
	domain := l.chain.Get(ctx, l.variant.Primary())
	if domain == nil {
		l.logger.Warn("Domain layer unavailable after reseed", zap.Stringer("layer", l.variant.Primary()))
		return
	}
	if l.variant.Lite() {
		l.reregisterSessionListeners(ctx, domain)
	}
}

func (l *Locator) onConnectionChanged(ctx context.Context, userID, screenID int32, connected bool, sessionBroker remote.Handle) {
	l.logger.Info("Connection changed",
		zap.Int32("pushed_user_id", userID),
		zap.Int32("screen_id", screenID),
		zap.Bool("connected", connected),
	)

	l.connMu.Lock()
	defer l.connMu.Unlock()

	prev := l.conn
	if connected {
		l.conn.UserID = userID
		l.conn.ScreenID = screenID
	}
	if userID == l.conn.UserID {
		l.conn.Connected = connected
	}

	if connected && prev.UserID > remote.InvalidUserID && prev.UserID != userID {
		l.notify(prev.UserID, prev.ScreenID, false)
		l.switchUser(ctx, userID, sessionBroker)
	}
	l.notify(userID, screenID, connected)
}

// switchUser runs under connMu.
func (l *Locator) switchUser(ctx context.Context, userID int32, sessionBroker remote.Handle) {
	l.logger.Info("User switched", zap.Int32("to_user_id", userID))
	l.reseed(ctx, sessionBroker)
	l.metrics.RecordConnectionChange(monitoring.KindSwitch)
	l.onUserSwitch.call(func(cb func()) { cb() })
}
