package locator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// fakeHandle is a handle whose death the test controls.
type fakeHandle struct {
	name       string
	descriptor string
	proxy      bool
	obj        any
	stub       remote.Stub

	mu         sync.Mutex
	dead       bool
	recipients map[remote.DeathRecipient]struct{}
}

func newProxy(name, descriptor string, obj any) *fakeHandle {
	return &fakeHandle{
		name:       name,
		descriptor: descriptor,
		proxy:      true,
		obj:        obj,
		recipients: make(map[remote.DeathRecipient]struct{}),
	}
}

func (h *fakeHandle) String() string     { return h.name }
func (h *fakeHandle) Descriptor() string { return h.descriptor }
func (h *fakeHandle) IsProxy() bool      { return h.proxy }

func (h *fakeHandle) AddDeathRecipient(r remote.DeathRecipient) bool {
	if !h.proxy {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dead {
		return false
	}
	h.recipients[r] = struct{}{}
	return true
}

func (h *fakeHandle) RemoveDeathRecipient(r remote.DeathRecipient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.recipients[r]
	delete(h.recipients, r)
	return ok
}

func (h *fakeHandle) Transact(ctx context.Context, code uint32, data *remote.Parcel) (*remote.Parcel, error) {
	if h.stub == nil {
		return nil, fmt.Errorf("%w: %s", remote.ErrUnknownCode, h.name)
	}
	return h.stub.OnRemoteRequest(ctx, code, data)
}

// linked returns the number of death recipients attached.
func (h *fakeHandle) linked() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.recipients)
}

// kill marks the handle dead and notifies its recipients.
func (h *fakeHandle) kill() {
	h.mu.Lock()
	h.dead = true
	rs := make([]remote.DeathRecipient, 0, len(h.recipients))
	for r := range h.recipients {
		rs = append(rs, r)
	}
	h.recipients = make(map[remote.DeathRecipient]struct{})
	h.mu.Unlock()

	for _, r := range rs {
		r.OnRemoteDied(h)
	}
}

type registration struct {
	listener remote.Handle
	userID   int32
	lite     bool
}

// fakeBackend is an in-memory broker world that counts every remote call.
type fakeBackend struct {
	mu          sync.Mutex
	calls       map[string]int
	registryErr error
	bootstrap   *fakeBootstrap
	generation  int
	listeners   []registration
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{calls: make(map[string]int)}
	b.bootstrap = b.newBootstrap()
	return b
}

func (b *fakeBackend) count(call string) {
	b.mu.Lock()
	b.calls[call]++
	b.mu.Unlock()
}

func (b *fakeBackend) callCount(call string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[call]
}

func (b *fakeBackend) totalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

func (b *fakeBackend) newBootstrap() *fakeBootstrap {
	b.generation++
	bb := &fakeBootstrap{
		backend:  b,
		gen:      b.generation,
		sessions: make(map[int32]*fakeSession),
	}
	bb.handle = newProxy(fmt.Sprintf("bootstrap/%d", bb.gen), remote.BootstrapBrokerDescriptor, bb)
	bb.screenLite = newProxy(fmt.Sprintf("screen-lite/%d", bb.gen), remote.ScreenBrokerLiteDescriptor, nil)
	return bb
}

// current returns the bootstrap broker the registry resolves to.
func (b *fakeBackend) current() *fakeBootstrap {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bootstrap
}

// restart replaces the bootstrap broker and kills the old one.
func (b *fakeBackend) restart() *fakeBootstrap {
	b.mu.Lock()
	old := b.bootstrap
	b.bootstrap = b.newBootstrap()
	next := b.bootstrap
	b.mu.Unlock()

	old.handle.kill()
	return next
}

func (b *fakeBackend) setRegistryErr(err error) {
	b.mu.Lock()
	b.registryErr = err
	b.mu.Unlock()
}

// listener returns the handle most recently registered as recover listener.
func (b *fakeBackend) listener() remote.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.listeners) == 0 {
		return nil
	}
	return b.listeners[len(b.listeners)-1].listener
}

func (b *fakeBackend) lastRegistration() registration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listeners[len(b.listeners)-1]
}

func (b *fakeBackend) Registry(context.Context) (remote.Registry, error) {
	b.mu.Lock()
	err := b.registryErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return fakeRegistry{backend: b}, nil
}

func (b *fakeBackend) BootstrapBroker(h remote.Handle) (remote.BootstrapBroker, bool) {
	fh, ok := h.(*fakeHandle)
	if !ok || fh.descriptor != remote.BootstrapBrokerDescriptor {
		return nil, false
	}
	return fh.obj.(*fakeBootstrap), true
}

func (b *fakeBackend) SessionBroker(h remote.Handle) (remote.SessionBroker, bool) {
	fh, ok := h.(*fakeHandle)
	if !ok || fh.descriptor != remote.SessionBrokerDescriptor {
		return nil, false
	}
	return fh.obj.(*fakeSession), true
}

func (b *fakeBackend) Publish(stub remote.Stub) (remote.Handle, error) {
	b.count("publish")
	return &fakeHandle{name: "listener", descriptor: stub.Descriptor(), stub: stub}, nil
}

type fakeRegistry struct {
	backend *fakeBackend
}

func (r fakeRegistry) Resolve(_ context.Context, serviceID int32) (remote.Handle, error) {
	r.backend.count("resolve")
	if serviceID != remote.WindowManagerServiceID {
		return nil, nil
	}
	return r.backend.current().handle, nil
}

type fakeBootstrap struct {
	backend    *fakeBackend
	gen        int
	handle     *fakeHandle
	screenLite *fakeHandle

	mu       sync.Mutex
	sessions map[int32]*fakeSession
}

// session returns the session broker of userID, creating it on first use.
func (bb *fakeBootstrap) session(userID int32) *fakeSession {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	s, ok := bb.sessions[userID]
	if !ok {
		s = newFakeSession(bb.backend, fmt.Sprintf("user-%d/gen-%d", userID, bb.gen))
		bb.sessions[userID] = s
	}
	return s
}

func (bb *fakeBootstrap) AsObject() remote.Handle { return bb.handle }

func (bb *fakeBootstrap) GetSessionBroker(_ context.Context, userID int32) (remote.Handle, error) {
	bb.backend.count("session")
	return bb.session(userID).handle, nil
}

func (bb *fakeBootstrap) GetScreenBrokerLite(context.Context) (remote.Handle, error) {
	bb.backend.count("screen_lite")
	return bb.screenLite, nil
}

func (bb *fakeBootstrap) RegisterRecoverListener(_ context.Context, listener remote.Handle, userID int32, lite bool) error {
	bb.backend.count("register")
	bb.backend.mu.Lock()
	bb.backend.listeners = append(bb.backend.listeners, registration{listener: listener, userID: userID, lite: lite})
	bb.backend.mu.Unlock()
	return nil
}

func (bb *fakeBootstrap) UnregisterRecoverListener(context.Context, remote.Handle, int32, bool) error {
	bb.backend.count("unregister")
	return nil
}

type fakeSession struct {
	backend *fakeBackend
	handle  *fakeHandle
	lite    *fakeLiteDomain

	mu         sync.Mutex
	domain     *fakeHandle
	domainLite *fakeHandle
}

func newFakeSession(b *fakeBackend, name string) *fakeSession {
	s := &fakeSession{backend: b}
	s.handle = newProxy("session/"+name, remote.SessionBrokerDescriptor, s)
	s.domain = newProxy("domain/"+name, remote.DomainServiceDescriptor, nil)
	s.lite = &fakeLiteDomain{backend: b}
	s.domainLite = newProxy("domain-lite/"+name, remote.DomainServiceLiteDescriptor, s.lite)
	s.domainLite.stub = s.lite
	return s
}

// replaceDomain swaps in a new domain handle and returns it.
func (s *fakeSession) replaceDomain(name string) *fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domain = newProxy(name, remote.DomainServiceDescriptor, nil)
	return s.domain
}

func (s *fakeSession) currentDomain() *fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domain
}

func (s *fakeSession) AsObject() remote.Handle { return s.handle }

func (s *fakeSession) GetDomainProxy(context.Context) (remote.Handle, error) {
	s.backend.count("domain")
	return s.currentDomain(), nil
}

func (s *fakeSession) GetDomainProxyLite(context.Context) (remote.Handle, error) {
	s.backend.count("domain_lite")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domainLite, nil
}

type sessionRegistration struct {
	listener  remote.Handle
	recovered bool
}

// fakeLiteDomain records the session listeners registered with it.
type fakeLiteDomain struct {
	backend *fakeBackend

	mu         sync.Mutex
	registered []sessionRegistration
}

func (d *fakeLiteDomain) Descriptor() string { return remote.DomainServiceLiteDescriptor }

func (d *fakeLiteDomain) OnRemoteRequest(_ context.Context, code uint32, data *remote.Parcel) (*remote.Parcel, error) {
	d.backend.count("session_listener")
	listener, err := data.ReadHandle(remote.KeyListener)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch code {
	case remote.CodeRegisterSessionListener:
		recovered, err := data.ReadBool(remote.KeyRecover)
		if err != nil {
			return nil, err
		}
		d.registered = append(d.registered, sessionRegistration{listener: listener, recovered: recovered})
	case remote.CodeUnregisterSessionListener:
		kept := d.registered[:0]
		for _, r := range d.registered {
			if r.listener != listener {
				kept = append(kept, r)
			}
		}
		d.registered = kept
	default:
		return nil, fmt.Errorf("%w: lite domain code %d", remote.ErrUnknownCode, code)
	}
	return remote.NewParcel(), nil
}

func (d *fakeLiteDomain) registrations() []sessionRegistration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sessionRegistration(nil), d.registered...)
}

var errRegistryDown = errors.New("registry down")

// event is one callback observed by a test.
type event struct {
	kind      string
	userID    int32
	screenID  int32
	connected bool
}

// recorder collects callbacks in order.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) connection(userID, screenID int32, connected bool) {
	r.mu.Lock()
	r.events = append(r.events, event{kind: "conn", userID: userID, screenID: screenID, connected: connected})
	r.mu.Unlock()
}

func (r *recorder) mark(kind string) func() {
	return func() {
		r.mu.Lock()
		r.events = append(r.events, event{kind: kind})
		r.mu.Unlock()
	}
}

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func connectionChanged(userID, screenID int32, connected bool, sessionBroker remote.Handle) *remote.Parcel {
	return remote.NewParcel().
		WriteInt32(remote.KeyUserID, userID).
		WriteInt32(remote.KeyScreenID, screenID).
		WriteBool(remote.KeyConnected, connected).
		WriteHandle(remote.KeySessionBroker, sessionBroker)
}
