package broker

import (
	"context"
	"fmt"

	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// RegistryProxy is the client side of the service registry.
type RegistryProxy struct {
	remote remote.Handle
}

// NewRegistryProxy wraps h.
func NewRegistryProxy(h remote.Handle) *RegistryProxy {
	return &RegistryProxy{remote: h}
}

// Resolve returns the handle registered under serviceID, or nil.
func (p *RegistryProxy) Resolve(ctx context.Context, serviceID int32) (remote.Handle, error) {
	reply, err := p.remote.Transact(ctx, remote.CodeResolve, remote.NewParcel().WriteInt32(remote.KeyServiceID, serviceID))
	if err != nil {
		return nil, err
	}
	return reply.ReadHandle(remote.KeyObject)
}

// BootstrapBrokerProxy is the client side of the bootstrap broker.
type BootstrapBrokerProxy struct {
	remote remote.Handle
}

// AsBootstrapBroker casts h when it carries the bootstrap broker interface.
func AsBootstrapBroker(h remote.Handle) (*BootstrapBrokerProxy, bool) {
	if h == nil || h.Descriptor() != remote.BootstrapBrokerDescriptor {
		return nil, false
	}
	return &BootstrapBrokerProxy{remote: h}, true
}

// AsObject returns the underlying handle.
func (p *BootstrapBrokerProxy) AsObject() remote.Handle { return p.remote }

// GetSessionBroker returns the session broker of userID, or nil.
func (p *BootstrapBrokerProxy) GetSessionBroker(ctx context.Context, userID int32) (remote.Handle, error) {
	reply, err := p.remote.Transact(ctx, remote.CodeGetSessionBroker, remote.NewParcel().WriteInt32(remote.KeyUserID, userID))
	if err != nil {
		return nil, err
	}
	return reply.ReadHandle(remote.KeySessionBroker)
}

// GetScreenBrokerLite returns the lite screen broker, or nil.
func (p *BootstrapBrokerProxy) GetScreenBrokerLite(ctx context.Context) (remote.Handle, error) {
	reply, err := p.remote.Transact(ctx, remote.CodeGetScreenBrokerLite, remote.NewParcel())
	if err != nil {
		return nil, err
	}
	return reply.ReadHandle(remote.KeyScreenBroker)
}

// RegisterRecoverListener asks the broker to push recovery and connection
// changes for userID to listener.
func (p *BootstrapBrokerProxy) RegisterRecoverListener(ctx context.Context, listener remote.Handle, userID int32, lite bool) error {
	if listener == nil {
		return fmt.Errorf("%w: nil listener", remote.ErrInvalidArgument)
	}
	data := remote.NewParcel().
		WriteHandle(remote.KeyListener, listener).
		WriteInt32(remote.KeyUserID, userID).
		WriteBool(remote.KeyLite, lite)
	_, err := p.remote.Transact(ctx, remote.CodeRegisterRecoverListener, data)
	return err
}

// UnregisterRecoverListener removes a listener registered earlier.
func (p *BootstrapBrokerProxy) UnregisterRecoverListener(ctx context.Context, listener remote.Handle, userID int32, lite bool) error {
	if listener == nil {
		return fmt.Errorf("%w: nil listener", remote.ErrInvalidArgument)
	}
	data := remote.NewParcel().
		WriteHandle(remote.KeyListener, listener).
		WriteInt32(remote.KeyUserID, userID).
		WriteBool(remote.KeyLite, lite)
	_, err := p.remote.Transact(ctx, remote.CodeUnregisterRecoverListener, data)
	return err
}

// SessionBrokerProxy is the client side of a session broker.
type SessionBrokerProxy struct {
	remote remote.Handle
}

// AsSessionBroker casts h when it carries the session broker interface.
func AsSessionBroker(h remote.Handle) (*SessionBrokerProxy, bool) {
	if h == nil || h.Descriptor() != remote.SessionBrokerDescriptor {
		return nil, false
	}
	return &SessionBrokerProxy{remote: h}, true
}

// AsObject returns the underlying handle.
func (p *SessionBrokerProxy) AsObject() remote.Handle { return p.remote }

// GetDomainProxy returns the domain service, or nil.
func (p *SessionBrokerProxy) GetDomainProxy(ctx context.Context) (remote.Handle, error) {
	reply, err := p.remote.Transact(ctx, remote.CodeGetDomainProxy, remote.NewParcel())
	if err != nil {
		return nil, err
	}
	return reply.ReadHandle(remote.KeyDomain)
}

// GetDomainProxyLite returns the lite domain service, or nil.
func (p *SessionBrokerProxy) GetDomainProxyLite(ctx context.Context) (remote.Handle, error) {
	reply, err := p.remote.Transact(ctx, remote.CodeGetDomainProxyLite, remote.NewParcel())
	if err != nil {
		return nil, err
	}
	return reply.ReadHandle(remote.KeyDomain)
}

// RecoverListenerProxy is how a broker pushes to a client's recover listener.
type RecoverListenerProxy struct {
	remote remote.Handle
}

// NewRecoverListenerProxy wraps h.
func NewRecoverListenerProxy(h remote.Handle) *RecoverListenerProxy {
	return &RecoverListenerProxy{remote: h}
}

// OnServiceRecovered tells the client its session broker was replaced.
func (p *RecoverListenerProxy) OnServiceRecovered(ctx context.Context, sessionBroker remote.Handle) error {
	_, err := p.remote.Transact(ctx, remote.CodeServiceRecovered,
		remote.NewParcel().WriteHandle(remote.KeySessionBroker, sessionBroker))
	return err
}

// OnConnectionChanged tells the client that userID connected or
// disconnected on screenID.
func (p *RecoverListenerProxy) OnConnectionChanged(ctx context.Context, userID, screenID int32, connected bool, sessionBroker remote.Handle) error {
	data := remote.NewParcel().
		WriteInt32(remote.KeyUserID, userID).
		WriteInt32(remote.KeyScreenID, screenID).
		WriteBool(remote.KeyConnected, connected).
		WriteHandle(remote.KeySessionBroker, sessionBroker)
	_, err := p.remote.Transact(ctx, remote.CodeConnectionChanged, data)
	return err
}

// DomainProxy is the client side of the domain service.
type DomainProxy struct {
	remote remote.Handle
}

// AsDomain casts h when it carries a domain service or lite screen broker
// interface, all of which answer Ping.
func AsDomain(h remote.Handle) (*DomainProxy, bool) {
	if h == nil {
		return nil, false
	}
	switch h.Descriptor() {
	case remote.DomainServiceDescriptor, remote.DomainServiceLiteDescriptor, remote.ScreenBrokerLiteDescriptor:
		return &DomainProxy{remote: h}, true
	default:
		return nil, false
	}
}

// Ping returns the label of the serving instance.
func (p *DomainProxy) Ping(ctx context.Context) (string, error) {
	reply, err := p.remote.Transact(ctx, remote.CodePing, remote.NewParcel())
	if err != nil {
		return "", err
	}
	return reply.ReadString(remote.KeyLabel)
}
