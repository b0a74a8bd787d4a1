package broker

import (
	"context"
	"fmt"

	"github.com/openharmony/window-window-manager-sub028/internal/binder"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// Backend connects a locator to brokers over the binder transport.
type Backend struct {
	pool     *binder.Pool
	endpoint *binder.Endpoint
	registry binder.Ref
}

// NewBackend creates a backend resolving the registry at registryAddr
// through pool and publishing recover listeners on endpoint.
func NewBackend(pool *binder.Pool, endpoint *binder.Endpoint, registryAddr string) *Backend {
	return &Backend{
		pool:     pool,
		endpoint: endpoint,
		registry: binder.Ref{
			Address:    registryAddr,
			Object:     remote.RegistryObjectID,
			Descriptor: remote.RegistryDescriptor,
		},
	}
}

// Registry returns the service registry.
func (b *Backend) Registry(ctx context.Context) (remote.Registry, error) {
	h, err := b.pool.Proxy(ctx, b.registry)
	if err != nil {
		return nil, fmt.Errorf("%w: registry at %s: %w", remote.ErrUnavailable, b.registry.Address, err)
	}
	return NewRegistryProxy(h), nil
}

// BootstrapBroker casts h to the bootstrap broker interface.
func (b *Backend) BootstrapBroker(h remote.Handle) (remote.BootstrapBroker, bool) {
	p, ok := AsBootstrapBroker(h)
	if !ok {
		return nil, false
	}
	return p, true
}

// SessionBroker casts h to the session broker interface.
func (b *Backend) SessionBroker(h remote.Handle) (remote.SessionBroker, bool) {
	p, ok := AsSessionBroker(h)
	if !ok {
		return nil, false
	}
	return p, true
}

// Publish makes stub reachable by brokers.
func (b *Backend) Publish(stub remote.Stub) (remote.Handle, error) {
	if b.endpoint == nil {
		return nil, fmt.Errorf("%w: no endpoint to publish %s on", remote.ErrUnavailable, stub.Descriptor())
	}
	return b.endpoint.Publish(stub), nil
}
