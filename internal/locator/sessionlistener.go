package locator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// sessionListeners are the session listeners a lite locator registered
// with the lite domain service, kept so a replacement service can be told
// about them.
type sessionListeners struct {
	mu      sync.Mutex
	handles []remote.Handle
}

func (s *sessionListeners) indexLocked(h remote.Handle) int {
	for i, have := range s.handles {
		if remote.SameHandle(have, h) {
			return i
		}
	}
	return -1
}

func (s *sessionListeners) add(h remote.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(h) >= 0 {
		return false
	}
	s.handles = append(s.handles, h)
	return true
}

func (s *sessionListeners) remove(h remote.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(h)
	if i < 0 {
		return false
	}
	s.handles = append(s.handles[:i], s.handles[i+1:]...)
	return true
}

func (s *sessionListeners) clear() {
	s.mu.Lock()
	s.handles = nil
	s.mu.Unlock()
}

func (s *sessionListeners) snapshot() []remote.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Handle(nil), s.handles...)
}

func sessionListenerCall(ctx context.Context, domain remote.Handle, code uint32, listener remote.Handle, recovered bool) error {
	data := remote.NewParcel().WriteHandle(remote.KeyListener, listener)
	if code == remote.CodeRegisterSessionListener {
		data.WriteBool(remote.KeyRecover, recovered)
	}
	_, err := domain.Transact(ctx, code, data)
	return err
}

func (l *Locator) checkSessionListener(listener remote.Handle) error {
	if !l.variant.Lite() {
		return fmt.Errorf("%w: session listeners need a lite locator", remote.ErrInvalidArgument)
	}
	if listener == nil {
		return fmt.Errorf("%w: nil session listener", remote.ErrInvalidArgument)
	}
	return nil
}

// AddSessionListener registers listener with the lite domain service. A
// listener the service accepted is kept and registered again with every
// service that replaces this one after a recovery or a user switch.
func (l *Locator) AddSessionListener(ctx context.Context, listener remote.Handle) error {
	if err := l.checkSessionListener(listener); err != nil {
		return err
	}
	domain := l.chain.Get(ctx, LayerDomainLite)
	if domain == nil {
		return fmt.Errorf("%w: %s", remote.ErrUnavailable, LayerDomainLite)
	}
	if err := sessionListenerCall(ctx, domain, remote.CodeRegisterSessionListener, listener, false); err != nil {
		return fmt.Errorf("register session listener: %w", err)
	}
	if !l.sessionListeners.add(listener) {
		l.logger.Debug("Session listener already saved")
	}
	return nil
}

// RemoveSessionListener forgets listener and unregisters it from the lite
// domain service. The listener is forgotten even when that call fails.
func (l *Locator) RemoveSessionListener(ctx context.Context, listener remote.Handle) error {
	if err := l.checkSessionListener(listener); err != nil {
		return err
	}
	l.sessionListeners.remove(listener)

	domain := l.chain.Get(ctx, LayerDomainLite)
	if domain == nil {
		return fmt.Errorf("%w: %s", remote.ErrUnavailable, LayerDomainLite)
	}
	if err := sessionListenerCall(ctx, domain, remote.CodeUnregisterSessionListener, listener, false); err != nil {
		return fmt.Errorf("unregister session listener: %w", err)
	}
	return nil
}

// RemoveAllSessionListeners forgets every saved session listener without
// any remote call.
func (l *Locator) RemoveAllSessionListeners() {
	l.sessionListeners.clear()
}

// SessionListeners returns the number of saved session listeners.
func (l *Locator) SessionListeners() int {
	return len(l.sessionListeners.snapshot())
}

// reregisterSessionListeners registers the saved listeners with a
// replacement lite domain service, flagged as recovered.
func (l *Locator) reregisterSessionListeners(ctx context.Context, domain remote.Handle) {
	saved := l.sessionListeners.snapshot()
	if len(saved) == 0 {
		return
	}
	failed := 0
	for _, listener := range saved {
		if err := sessionListenerCall(ctx, domain, remote.CodeRegisterSessionListener, listener, true); err != nil {
			failed++
			l.logger.Warn("Session listener not registered again", zap.Error(err))
		}
	}
	l.logger.Info("Session listeners registered again",
		zap.Int("count", len(saved)),
		zap.Int("failed", failed),
	)
}
