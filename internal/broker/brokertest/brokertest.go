// Package brokertest runs a reference broker and locator clients over
// in-memory connections.
package brokertest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/test/bufconn"

	"github.com/openharmony/window-window-manager-sub028/internal/binder"
	"github.com/openharmony/window-window-manager-sub028/internal/broker"
	"github.com/openharmony/window-window-manager-sub028/internal/locator"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// Addresses of the broker and client endpoints.
const (
	BrokerAddr = "broker:46060"
	ClientAddr = "client:46061"
)

// Network routes bufconn dials by address.
type Network struct {
	mu        sync.Mutex
	listeners map[string]*bufconn.Listener
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{listeners: make(map[string]*bufconn.Listener)}
}

// Dial connects to the endpoint serving addr.
func (n *Network) Dial(ctx context.Context, addr string) (net.Conn, error) {
	n.mu.Lock()
	lis, ok := n.listeners[addr]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no listener at %s", addr)
	}
	return lis.DialContext(ctx)
}

// Serve starts an endpoint at addr backed by its own pool. Both are closed
// when the test ends.
func (n *Network) Serve(t testing.TB, addr string) (*binder.Endpoint, *binder.Pool) {
	t.Helper()
	pool := binder.NewPool(binder.PoolConfig{DialTimeout: 2 * time.Second, Dialer: n.Dial}, nil, nil)
	ep := binder.NewEndpoint(addr, pool, nil, nil)

	lis := bufconn.Listen(1 << 20)
	n.mu.Lock()
	n.listeners[addr] = lis
	n.mu.Unlock()

	go func() { _ = ep.Serve(lis) }()
	t.Cleanup(func() {
		ep.Stop()
		pool.Close()
	})
	return ep, pool
}

// World is a broker and a locator registry connected to it. Client is
// the endpoint the locators publish on.
type World struct {
	Network  *Network
	Server   *broker.Server
	Endpoint *binder.Endpoint
	Client   *binder.Endpoint
	Registry *locator.Registry
}

// NewWorld starts a broker with no users and a registry of variant
// locators pointed at it.
func NewWorld(t testing.TB, variant locator.Variant) *World {
	t.Helper()
	w := &World{Network: NewNetwork()}
	w.StartBroker(t)

	ep, pool := w.Network.Serve(t, ClientAddr)
	w.Client = ep
	w.Registry = locator.NewRegistry(broker.NewBackend(pool, ep, BrokerAddr), variant)
	return w
}

// StartBroker starts a fresh broker at BrokerAddr, replacing the current
// one. Stop the current broker's endpoint first to simulate a restart.
func (w *World) StartBroker(t testing.TB) {
	t.Helper()
	ep, _ := w.Network.Serve(t, BrokerAddr)
	w.Endpoint = ep
	w.Server = broker.NewServer(ep, remote.InvalidUserID, nil, nil)
}
