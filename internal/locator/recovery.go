package locator

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/monitoring"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// RecoveryState is the registration state of a RecoveryListener.
type RecoveryState int

const (
	RecoveryUnregistered RecoveryState = iota
	RecoveryRegistered
)

func (s RecoveryState) String() string {
	if s == RecoveryRegistered {
		return "registered"
	}
	return "unregistered"
}

// pushHandler receives the pushes a RecoveryListener accepted.
type pushHandler interface {
	onServiceRecovered(ctx context.Context, sessionBroker remote.Handle)
	onConnectionChanged(ctx context.Context, userID, screenID int32, connected bool, sessionBroker remote.Handle)
}

// RecoveryListener is the inbound endpoint a bootstrap broker pushes
// ServiceRecovered and ConnectionChanged to. It is published once, lazily,
// and registered with at most one broker at a time.
type RecoveryListener struct {
	userID  int32
	lite    bool
	publish func(remote.Stub) (remote.Handle, error)
	handler pushHandler
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu     sync.Mutex
	state  RecoveryState
	self   remote.Handle
	broker remote.BootstrapBroker
}

func newRecoveryListener(userID int32, lite bool, publish func(remote.Stub) (remote.Handle, error), handler pushHandler, logger *zap.Logger, metrics *monitoring.Metrics) *RecoveryListener {
	return &RecoveryListener{
		userID:  userID,
		lite:    lite,
		publish: publish,
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

// State returns the current registration state.
func (r *RecoveryListener) State() RecoveryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Register registers the listener with bb. While registered with bb it is
// a no-op, so a broker sees one registration however often it is called.
// A different broker gets a registration of its own.
func (r *RecoveryListener) Register(ctx context.Context, bb remote.BootstrapBroker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == RecoveryRegistered && r.broker != nil && remote.SameHandle(r.broker.AsObject(), bb.AsObject()) {
		return nil
	}
	if r.self == nil {
		h, err := r.publish(&recoveryStub{listener: r})
		if err != nil {
			return fmt.Errorf("publish recover listener: %w", err)
		}
		r.self = h
	}
	if err := bb.RegisterRecoverListener(ctx, r.self, r.userID, r.lite); err != nil {
		return fmt.Errorf("register recover listener: %w", err)
	}

	r.state = RecoveryRegistered
	r.broker = bb
	r.logger.Info("Recover listener registered", zap.Int32("user_id", r.userID), zap.Bool("lite", r.lite))
	return nil
}

// Unregister tells the broker to drop the listener and returns to
// UNREGISTERED even when that call fails.
func (r *RecoveryListener) Unregister(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bb := r.broker
	r.state = RecoveryUnregistered
	r.broker = nil
	if bb == nil || r.self == nil {
		return nil
	}
	if err := bb.UnregisterRecoverListener(ctx, r.self, r.userID, r.lite); err != nil {
		r.logger.Warn("Unregister recover listener failed", zap.Int32("user_id", r.userID), zap.Error(err))
		return fmt.Errorf("unregister recover listener: %w", err)
	}
	r.logger.Info("Recover listener unregistered", zap.Int32("user_id", r.userID))
	return nil
}

// markUnregistered forgets the registration held by the dead broker
// without a remote call. It reports false and keeps the state when the
// listener has since been registered with another broker.
func (r *RecoveryListener) markUnregistered(dead remote.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broker != nil && !remote.SameHandle(r.broker.AsObject(), dead) {
		return false
	}
	r.state = RecoveryUnregistered
	r.broker = nil
	return true
}

func (r *RecoveryListener) reject(code uint32, err error) error {
	r.metrics.RecordPushRejected(strconv.FormatUint(uint64(code), 10))
	r.logger.Error("Push rejected", zap.Uint32("code", code), zap.Error(err))
	return fmt.Errorf("%w: %w", remote.ErrTransaction, err)
}

// recoveryStub parses pushes and hands them to the listener's handler.
type recoveryStub struct {
	listener *RecoveryListener
}

func (s *recoveryStub) Descriptor() string { return remote.RecoverListenerDescriptor }

func (s *recoveryStub) OnRemoteRequest(ctx context.Context, code uint32, data *remote.Parcel) (*remote.Parcel, error) {
	r := s.listener
	switch code {
	case remote.CodeServiceRecovered:
		// A missing or unreadable handle still means the service recovered.
		sb, err := data.ReadHandle(remote.KeySessionBroker)
		if err != nil {
			r.logger.Warn("ServiceRecovered without session broker", zap.Error(err))
			sb = nil
		}
		r.handler.onServiceRecovered(ctx, sb)
		return remote.NewParcel(), nil

	case remote.CodeConnectionChanged:
		userID, err := data.ReadInt32(remote.KeyUserID)
		if err != nil {
			return nil, r.reject(code, err)
		}
		screenID, err := data.ReadInt32(remote.KeyScreenID)
		if err != nil {
			return nil, r.reject(code, err)
		}
		connected, err := data.ReadBool(remote.KeyConnected)
		if err != nil {
			return nil, r.reject(code, err)
		}
		var sb remote.Handle
		if data.Has(remote.KeySessionBroker) {
			if sb, err = data.ReadHandle(remote.KeySessionBroker); err != nil {
				return nil, r.reject(code, err)
			}
		}
		r.handler.onConnectionChanged(ctx, userID, screenID, connected, sb)
		return remote.NewParcel(), nil

	default:
		r.metrics.RecordPushRejected(strconv.FormatUint(uint64(code), 10))
		return nil, fmt.Errorf("%w: recover listener code %d", remote.ErrUnknownCode, code)
	}
}
