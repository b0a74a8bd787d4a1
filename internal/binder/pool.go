package binder

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"

	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/logging"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/monitoring"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// ErrPoolClosed is returned by lookups after Close.
var ErrPoolClosed = errors.New("binder: pool closed")

// PoolConfig configures outbound connections.
type PoolConfig struct {
	// DialTimeout bounds the health-gated dial of a new peer.
	DialTimeout time.Duration
	// Dialer replaces the network dialer, e.g. with bufconn in tests.
	Dialer func(ctx context.Context, addr string) (net.Conn, error)
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// DefaultPoolConfig returns the settings used by the daemons.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{DialTimeout: 3 * time.Second}
}

// Pool keeps one client connection per peer address and hands out proxies
// over them.
type Pool struct {
	cfg     PoolConfig
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu     sync.Mutex
	conns  map[string]*conn
	local  *Endpoint
	closed bool
}

// NewPool creates an empty pool.
func NewPool(cfg PoolConfig, logger *zap.Logger, metrics *monitoring.Metrics) *Pool {
	return &Pool{
		cfg:     cfg,
		logger:  logging.OrNop(logger).Named("pool"),
		metrics: metrics,
		conns:   make(map[string]*conn),
	}
}

func (p *Pool) attach(e *Endpoint) {
	p.mu.Lock()
	p.local = e
	p.mu.Unlock()
}

// Proxy returns a handle for ref. References to objects published by the
// attached endpoint come back as their Local handle. For a live connection
// the same *Proxy is returned for the same object, so handles can be
// compared by identity.
func (p *Pool) Proxy(ctx context.Context, ref Ref) (remote.Handle, error) {
	p.mu.Lock()
	local := p.local
	p.mu.Unlock()
	if local != nil {
		if h, ok := local.lookupRef(ref); ok {
			return h, nil
		}
	}

	c, err := p.connFor(ctx, ref.Address)
	if err != nil {
		return nil, err
	}
	return c.proxy(ref), nil
}

// resolve is the resolveFunc used for handles arriving in replies.
func (p *Pool) resolve(ctx context.Context, r Ref) remote.Handle {
	h, err := p.Proxy(ctx, r)
	if err != nil {
		p.logger.Warn("Dropping unreachable handle", zap.Stringer("ref", r), zap.Error(err))
		return nil
	}
	return h
}

func (p *Pool) connFor(ctx context.Context, addr string) (*conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if c, ok := p.conns[addr]; ok && !c.isDead() {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	// Dial outside the lock; a racing dial to the same peer loses below.
	cc, err := dialWithHealth(ctx, addr, p.cfg)
	if err != nil {
		return nil, err
	}
	c := newConn(addr, cc, p)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.close()
		return nil, ErrPoolClosed
	}
	if existing, ok := p.conns[addr]; ok && !existing.isDead() {
		p.mu.Unlock()
		c.close()
		return existing, nil
	}
	p.conns[addr] = c
	p.mu.Unlock()

	p.logger.Debug("Connected to peer", zap.String("addr", addr))
	go c.watch()
	return c, nil
}

func (p *Pool) evict(c *conn) {
	p.mu.Lock()
	if p.conns[c.addr] == c {
		delete(p.conns, c.addr)
	}
	p.mu.Unlock()
}

// Len returns the number of live connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close closes every connection without firing death recipients.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	conns := p.conns
	p.conns = make(map[string]*conn)
	p.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

type link struct {
	proxy     *Proxy
	recipient remote.DeathRecipient
}

// conn is one client connection and the death links made through it.
type conn struct {
	addr string
	cc   *grpc.ClientConn
	pool *Pool

	closing atomic.Bool

	mu      sync.Mutex
	dead    bool
	proxies map[Ref]*Proxy
	links   map[link]struct{}
}

func newConn(addr string, cc *grpc.ClientConn, pool *Pool) *conn {
	return &conn{
		addr:    addr,
		cc:      cc,
		pool:    pool,
		proxies: make(map[Ref]*Proxy),
		links:   make(map[link]struct{}),
	}
}

func (c *conn) proxy(ref Ref) *Proxy {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.proxies[ref]; ok {
		return p
	}
	p := &Proxy{ref: ref, conn: c}
	c.proxies[ref] = p
	return p
}

func (c *conn) isDead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dead
}

func (c *conn) link(p *Proxy, r remote.DeathRecipient) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return false
	}
	c.links[link{proxy: p, recipient: r}] = struct{}{}
	return true
}

func (c *conn) unlink(p *Proxy, r remote.DeathRecipient) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := link{proxy: p, recipient: r}
	if _, ok := c.links[k]; !ok {
		return false
	}
	delete(c.links, k)
	return true
}

// watch declares the connection dead on its first transition out of Ready.
// The health-gated dial already saw it Ready.
func (c *conn) watch() {
	state := c.cc.GetState()
	for {
		if c.closing.Load() {
			return
		}
		if state != connectivity.Ready {
			c.die(state)
			return
		}
		if !c.cc.WaitForStateChange(context.Background(), state) {
			return
		}
		state = c.cc.GetState()
	}
}

func (c *conn) die(state connectivity.State) {
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return
	}
	c.dead = true
	links := c.links
	c.links = nil
	c.mu.Unlock()

	c.pool.evict(c)
	c.pool.metrics.IncBinderDeaths()
	c.pool.logger.Info("Peer connection died",
		zap.String("addr", c.addr),
		zap.Stringer("state", state),
		zap.Int("recipients", len(links)),
	)

	for l := range links {
		l.recipient.OnRemoteDied(l.proxy)
	}
	c.close()
}

func (c *conn) close() {
	if c.closing.Swap(true) {
		return
	}
	_ = c.cc.Close()
}
