package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// SessionBrokerStub vends the domain services of one user session.
type SessionBrokerStub struct {
	domain     remote.Handle
	domainLite remote.Handle
}

// NewSessionBrokerStub creates a session broker vending domain and
// domainLite. Either may be nil.
func NewSessionBrokerStub(domain, domainLite remote.Handle) *SessionBrokerStub {
	return &SessionBrokerStub{domain: domain, domainLite: domainLite}
}

// Descriptor implements remote.Stub.
func (s *SessionBrokerStub) Descriptor() string { return remote.SessionBrokerDescriptor }

// OnRemoteRequest implements remote.Stub.
func (s *SessionBrokerStub) OnRemoteRequest(_ context.Context, code uint32, _ *remote.Parcel) (*remote.Parcel, error) {
	switch code {
	case remote.CodeGetDomainProxy:
		return remote.NewParcel().WriteHandle(remote.KeyDomain, s.domain), nil
	case remote.CodeGetDomainProxyLite:
		return remote.NewParcel().WriteHandle(remote.KeyDomain, s.domainLite), nil
	default:
		return nil, fmt.Errorf("%w: session broker code %d", remote.ErrUnknownCode, code)
	}
}

// SessionListener is a session listener registered with a lite domain
// service. Recovered marks a registration replayed by a client after the
// service it first registered with went away.
type SessionListener struct {
	Handle    remote.Handle
	Recovered bool
}

// DomainStub is a minimal domain service answering Ping with its label.
// The lite domain service also keeps session listeners.
type DomainStub struct {
	descriptor string
	label      string

	mu        sync.Mutex
	listeners []SessionListener
}

// NewDomainStub creates the full domain service.
func NewDomainStub(label string) *DomainStub {
	return &DomainStub{descriptor: remote.DomainServiceDescriptor, label: label}
}

// NewDomainLiteStub creates the lite domain service.
func NewDomainLiteStub(label string) *DomainStub {
	return &DomainStub{descriptor: remote.DomainServiceLiteDescriptor, label: label}
}

// NewScreenBrokerLiteStub creates the lite screen broker.
func NewScreenBrokerLiteStub(label string) *DomainStub {
	return &DomainStub{descriptor: remote.ScreenBrokerLiteDescriptor, label: label}
}

// SessionListeners lists the registered session listeners in registration
// order.
func (s *DomainStub) SessionListeners() []SessionListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SessionListener(nil), s.listeners...)
}

// Descriptor implements remote.Stub.
func (s *DomainStub) Descriptor() string { return s.descriptor }

// OnRemoteRequest implements remote.Stub.
func (s *DomainStub) OnRemoteRequest(_ context.Context, code uint32, data *remote.Parcel) (*remote.Parcel, error) {
	lite := s.descriptor == remote.DomainServiceLiteDescriptor
	switch {
	case code == remote.CodePing:
		return remote.NewParcel().WriteString(remote.KeyLabel, s.label), nil
	case lite && code == remote.CodeRegisterSessionListener:
		return s.registerSessionListener(data)
	case lite && code == remote.CodeUnregisterSessionListener:
		return s.unregisterSessionListener(data)
	default:
		return nil, fmt.Errorf("%w: %s code %d", remote.ErrUnknownCode, s.descriptor, code)
	}
}

func readSessionListener(data *remote.Parcel) (remote.Handle, error) {
	h, err := data.ReadHandle(remote.KeyListener)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: nil session listener", remote.ErrInvalidArgument)
	}
	return h, nil
}

func (s *DomainStub) registerSessionListener(data *remote.Parcel) (*remote.Parcel, error) {
	h, err := readSessionListener(data)
	if err != nil {
		return nil, err
	}
	var recovered bool
	if data.Has(remote.KeyRecover) {
		if recovered, err = data.ReadBool(remote.KeyRecover); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if remote.SameHandle(l.Handle, h) {
			s.listeners[i].Recovered = recovered
			return remote.NewParcel(), nil
		}
	}
	s.listeners = append(s.listeners, SessionListener{Handle: h, Recovered: recovered})
	return remote.NewParcel(), nil
}

func (s *DomainStub) unregisterSessionListener(data *remote.Parcel) (*remote.Parcel, error) {
	h, err := readSessionListener(data)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if remote.SameHandle(l.Handle, h) {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			break
		}
	}
	return remote.NewParcel(), nil
}
