package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/logging"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/monitoring"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
	"github.com/openharmony/window-window-manager-sub028/internal/shared/id"
)

// ErrNoSession is returned when an admin operation names a user without a
// session broker.
var ErrNoSession = errors.New("broker: user has no session")

// Push kinds, used as metric labels.
const (
	PushServiceRecovered  = "service_recovered"
	PushConnectionChanged = "connection_changed"
)

const (
	defaultPushTimeout = 3 * time.Second
	maxConcurrentPush  = 16
)

// Session describes one user's session as the broker sees it.
type Session struct {
	UserID    int32 `json:"user_id"`
	ScreenID  int32 `json:"screen_id"`
	Connected bool  `json:"connected"`
	Default   bool  `json:"default"`

	broker remote.Handle
}

type listenerKey struct {
	handle remote.Handle
	userID int32
	lite   bool
}

type listener struct {
	id        id.ListenerID
	key       listenerKey
	proxy     *RecoverListenerProxy
	recipient *remote.DeathRecipientFunc
}

// ListenerInfo describes a registered recover listener.
type ListenerInfo struct {
	ID           string    `json:"id"`
	UserID       int32     `json:"user_id"`
	Lite         bool      `json:"lite"`
	RegisteredAt time.Time `json:"registered_at"`
}

// BootstrapBrokerStub is the reference bootstrap broker. It keeps one
// session broker per user, tracks which user is the default, and pushes
// recovery and connection changes to registered recover listeners.
//
// Listeners registered for the default user (any id <= 0) follow whichever
// user is the default and receive that user's changes. Listeners registered
// for a specific user receive only that user's changes.
type BootstrapBrokerStub struct {
	logger      *zap.Logger
	metrics     *monitoring.Metrics
	pushTimeout time.Duration

	mu          sync.Mutex
	defaultUser int32
	sessions    map[int32]*Session
	screenLite  remote.Handle
	listeners   map[listenerKey]*listener
}

// NewBootstrapBrokerStub creates a broker whose default user is
// defaultUser.
func NewBootstrapBrokerStub(defaultUser int32, logger *zap.Logger, metrics *monitoring.Metrics) *BootstrapBrokerStub {
	return &BootstrapBrokerStub{
		logger:      logging.OrNop(logger).Named("bootstrap"),
		metrics:     metrics,
		pushTimeout: defaultPushTimeout,
		defaultUser: defaultUser,
		sessions:    make(map[int32]*Session),
		listeners:   make(map[listenerKey]*listener),
	}
}

// WithPushTimeout bounds each push.
func (s *BootstrapBrokerStub) WithPushTimeout(d time.Duration) *BootstrapBrokerStub {
	s.pushTimeout = d
	return s
}

// SetScreenBrokerLite sets the handle vended to lite clients.
func (s *BootstrapBrokerStub) SetScreenBrokerLite(h remote.Handle) {
	s.mu.Lock()
	s.screenLite = h
	s.mu.Unlock()
}

// DefaultUser returns the current default user.
func (s *BootstrapBrokerStub) DefaultUser() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultUser
}

// Sessions lists sessions ordered by user id.
func (s *BootstrapBrokerStub) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := *sess
		cp.Default = sess.UserID == s.defaultUser
		cp.broker = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Listeners lists registered recover listeners ordered by id.
func (s *BootstrapBrokerStub) Listeners() []ListenerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ListenerInfo, 0, len(s.listeners))
	for _, l := range s.listeners {
		info := ListenerInfo{ID: l.id.String(), UserID: l.key.userID, Lite: l.key.lite}
		// Listener ids are ULIDs and carry their creation time.
		if at, err := id.Timestamp(info.ID); err == nil {
			info.RegisteredAt = at
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// resolveUser maps the default-user ids to the current default. Callers
// hold s.mu.
func (s *BootstrapBrokerStub) resolveUser(userID int32) int32 {
	if remote.IsDefaultUser(userID) {
		return s.defaultUser
	}
	return userID
}

// Connect records broker as userID's session broker on screenID and pushes
// ConnectionChanged(connected) to the interested listeners.
func (s *BootstrapBrokerStub) Connect(ctx context.Context, userID, screenID int32, broker remote.Handle) error {
	if remote.IsDefaultUser(userID) || broker == nil {
		return fmt.Errorf("%w: connect user %d", remote.ErrInvalidArgument, userID)
	}
	s.mu.Lock()
	s.sessions[userID] = &Session{UserID: userID, ScreenID: screenID, Connected: true, broker: broker}
	if remote.IsDefaultUser(s.defaultUser) {
		s.defaultUser = userID
	}
	targets := s.targetsLocked(userID)
	s.mu.Unlock()

	s.logger.Info("User connected", zap.Int32("user_id", userID), zap.Int32("screen_id", screenID))
	return s.pushConnection(ctx, targets, userID, screenID, true, broker)
}

// Disconnect marks userID's session gone and pushes
// ConnectionChanged(disconnected).
func (s *BootstrapBrokerStub) Disconnect(ctx context.Context, userID int32) error {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok || !sess.Connected {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoSession, userID)
	}
	sess.Connected = false
	sess.broker = nil
	screenID := sess.ScreenID
	targets := s.targetsLocked(userID)
	s.mu.Unlock()

	s.logger.Info("User disconnected", zap.Int32("user_id", userID))
	return s.pushConnection(ctx, targets, userID, screenID, false, nil)
}

// SwitchUser makes userID the default user and pushes
// ConnectionChanged(connected) so default-user clients switch over.
func (s *BootstrapBrokerStub) SwitchUser(ctx context.Context, userID int32) error {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok || !sess.Connected {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoSession, userID)
	}
	prev := s.defaultUser
	s.defaultUser = userID
	screenID, broker := sess.ScreenID, sess.broker
	targets := s.targetsLocked(userID)
	s.mu.Unlock()

	s.logger.Info("Switched default user", zap.Int32("from", prev), zap.Int32("to", userID))
	return s.pushConnection(ctx, targets, userID, screenID, true, broker)
}

// Recover replaces userID's session broker after it restarted and pushes
// ServiceRecovered to the interested listeners.
func (s *BootstrapBrokerStub) Recover(ctx context.Context, userID int32, broker remote.Handle) error {
	if broker == nil {
		return fmt.Errorf("%w: nil session broker", remote.ErrInvalidArgument)
	}
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoSession, userID)
	}
	sess.broker = broker
	sess.Connected = true
	targets := s.targetsLocked(userID)
	s.mu.Unlock()

	s.logger.Info("Session broker recovered", zap.Int32("user_id", userID), zap.Int("listeners", len(targets)))
	return s.fanOut(ctx, PushServiceRecovered, targets, func(ctx context.Context, p *RecoverListenerProxy) error {
		return p.OnServiceRecovered(ctx, broker)
	})
}

// targetsLocked returns listeners interested in userID's changes: those
// registered for userID, plus default-user listeners while userID is the
// default.
func (s *BootstrapBrokerStub) targetsLocked(userID int32) []*listener {
	var out []*listener
	for _, l := range s.listeners {
		if l.key.userID == userID || (remote.IsDefaultUser(l.key.userID) && userID == s.defaultUser) {
			out = append(out, l)
		}
	}
	return out
}

func (s *BootstrapBrokerStub) pushConnection(ctx context.Context, targets []*listener, userID, screenID int32, connected bool, broker remote.Handle) error {
	return s.fanOut(ctx, PushConnectionChanged, targets, func(ctx context.Context, p *RecoverListenerProxy) error {
		return p.OnConnectionChanged(ctx, userID, screenID, connected, broker)
	})
}

// fanOut pushes to every target concurrently and reports the first error
// after all pushes finished.
func (s *BootstrapBrokerStub) fanOut(ctx context.Context, kind string, targets []*listener, push func(context.Context, *RecoverListenerProxy) error) error {
	var g errgroup.Group
	g.SetLimit(maxConcurrentPush)

	for _, l := range targets {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, s.pushTimeout)
			defer cancel()

			if err := push(pctx, l.proxy); err != nil {
				s.metrics.RecordBrokerPush(kind, monitoring.OutcomeError)
				s.logger.Warn("Push failed",
					zap.String("kind", kind),
					zap.Stringer("listener", l.id),
					zap.Error(err),
				)
				return fmt.Errorf("push %s to %s: %w", kind, l.id, err)
			}
			s.metrics.RecordBrokerPush(kind, monitoring.OutcomeOK)
			return nil
		})
	}
	return g.Wait()
}

func (s *BootstrapBrokerStub) addListener(h remote.Handle, userID int32, lite bool) {
	key := listenerKey{handle: h, userID: userID, lite: lite}

	s.mu.Lock()
	if _, ok := s.listeners[key]; ok {
		s.mu.Unlock()
		return
	}
	l := &listener{
		id:    id.NewListenerID(),
		key:   key,
		proxy: NewRecoverListenerProxy(h),
	}
	onDeath := remote.DeathRecipientFunc(func(remote.Handle) { s.removeListener(key, "client died") })
	l.recipient = &onDeath
	s.listeners[key] = l

	resolved := s.resolveUser(userID)
	sess := s.sessions[resolved]
	var late *Session
	if sess != nil && sess.Connected {
		cp := *sess
		late = &cp
	}
	s.mu.Unlock()

	if !h.AddDeathRecipient(l.recipient) && h.IsProxy() {
		s.removeListener(key, "client already dead")
		return
	}
	s.logger.Info("Recover listener registered",
		zap.Stringer("listener", l.id),
		zap.Int32("user_id", userID),
		zap.Bool("lite", lite),
	)

	// A listener that registers after its user connected is told so at
	// once. The push runs detached so the client is never called back
	// while it still waits for this registration to return.
	if late != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.pushTimeout)
			defer cancel()
			_ = s.pushConnection(ctx, []*listener{l}, late.UserID, late.ScreenID, true, late.broker)
		}()
	}
}

func (s *BootstrapBrokerStub) removeListener(key listenerKey, reason string) bool {
	s.mu.Lock()
	l, ok := s.listeners[key]
	if ok {
		delete(s.listeners, key)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	key.handle.RemoveDeathRecipient(l.recipient)
	s.logger.Info("Recover listener removed",
		zap.Stringer("listener", l.id),
		zap.String("reason", reason),
	)
	return true
}

// Descriptor implements remote.Stub.
func (s *BootstrapBrokerStub) Descriptor() string { return remote.BootstrapBrokerDescriptor }

// OnRemoteRequest implements remote.Stub.
func (s *BootstrapBrokerStub) OnRemoteRequest(_ context.Context, code uint32, data *remote.Parcel) (*remote.Parcel, error) {
	switch code {
	case remote.CodeGetSessionBroker:
		userID, err := data.ReadInt32(remote.KeyUserID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		var h remote.Handle
		if sess := s.sessions[s.resolveUser(userID)]; sess != nil && sess.Connected {
			h = sess.broker
		}
		s.mu.Unlock()
		return remote.NewParcel().WriteHandle(remote.KeySessionBroker, h), nil

	case remote.CodeGetScreenBrokerLite:
		s.mu.Lock()
		h := s.screenLite
		s.mu.Unlock()
		return remote.NewParcel().WriteHandle(remote.KeyScreenBroker, h), nil

	case remote.CodeRegisterRecoverListener, remote.CodeUnregisterRecoverListener:
		h, err := data.ReadHandle(remote.KeyListener)
		if err != nil {
			return nil, err
		}
		if h == nil {
			return nil, fmt.Errorf("%w: listener is null", remote.ErrInvalidArgument)
		}
		userID, err := data.ReadInt32(remote.KeyUserID)
		if err != nil {
			return nil, err
		}
		lite, err := data.ReadBool(remote.KeyLite)
		if err != nil {
			return nil, err
		}
		if code == remote.CodeRegisterRecoverListener {
			s.addListener(h, userID, lite)
		} else {
			s.removeListener(listenerKey{handle: h, userID: userID, lite: lite}, "unregistered")
		}
		return remote.NewParcel(), nil

	default:
		return nil, fmt.Errorf("%w: bootstrap broker code %d", remote.ErrUnknownCode, code)
	}
}
