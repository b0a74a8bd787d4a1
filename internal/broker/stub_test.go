package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// clientHandle stands in for a client's recover listener and records the
// pushes it receives.
type clientHandle struct {
	mu         sync.Mutex
	dead       bool
	pushes     []push
	recipients []remote.DeathRecipient
}

type push struct {
	code      uint32
	userID    int32
	connected bool
	broker    remote.Handle
}

func (h *clientHandle) Descriptor() string { return remote.RecoverListenerDescriptor }
func (h *clientHandle) IsProxy() bool      { return true }

func (h *clientHandle) AddDeathRecipient(r remote.DeathRecipient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dead {
		return false
	}
	h.recipients = append(h.recipients, r)
	return true
}

func (h *clientHandle) RemoveDeathRecipient(r remote.DeathRecipient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, have := range h.recipients {
		if have == r {
			h.recipients = append(h.recipients[:i], h.recipients[i+1:]...)
			return true
		}
	}
	return false
}

func (h *clientHandle) Transact(_ context.Context, code uint32, data *remote.Parcel) (*remote.Parcel, error) {
	p := push{code: code}
	p.broker, _ = data.ReadHandle(remote.KeySessionBroker)
	if code == remote.CodeConnectionChanged {
		p.userID, _ = data.ReadInt32(remote.KeyUserID)
		p.connected, _ = data.ReadBool(remote.KeyConnected)
	}
	h.mu.Lock()
	h.pushes = append(h.pushes, p)
	h.mu.Unlock()
	return remote.NewParcel(), nil
}

func (h *clientHandle) received() []push {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]push(nil), h.pushes...)
}

func (h *clientHandle) kill() {
	h.mu.Lock()
	h.dead = true
	rs := h.recipients
	h.recipients = nil
	h.mu.Unlock()
	for _, r := range rs {
		r.OnRemoteDied(h)
	}
}

func register(t *testing.T, s *BootstrapBrokerStub, h remote.Handle, userID int32, lite bool) {
	t.Helper()
	data := remote.NewParcel().
		WriteHandle(remote.KeyListener, h).
		WriteInt32(remote.KeyUserID, userID).
		WriteBool(remote.KeyLite, lite)
	_, err := s.OnRemoteRequest(context.Background(), remote.CodeRegisterRecoverListener, data)
	require.NoError(t, err)
}

func sessionBroker(label string) remote.Handle {
	return &stubHandle{stub: NewSessionBrokerStub(nil, nil), label: label}
}

// stubHandle is an in-process handle to a stub.
type stubHandle struct {
	stub  remote.Stub
	label string
}

func (h *stubHandle) Descriptor() string                              { return h.stub.Descriptor() }
func (h *stubHandle) IsProxy() bool                                   { return false }
func (h *stubHandle) AddDeathRecipient(remote.DeathRecipient) bool    { return false }
func (h *stubHandle) RemoveDeathRecipient(remote.DeathRecipient) bool { return false }

func (h *stubHandle) Transact(ctx context.Context, code uint32, data *remote.Parcel) (*remote.Parcel, error) {
	return h.stub.OnRemoteRequest(ctx, code, data)
}

func TestRegistryStubResolve(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistryStub()
	bb := &stubHandle{stub: NewBootstrapBrokerStub(100, nil, nil)}
	reg.Add(remote.WindowManagerServiceID, bb)

	proxy := NewRegistryProxy(&stubHandle{stub: reg})
	h, err := proxy.Resolve(ctx, remote.WindowManagerServiceID)
	require.NoError(t, err)
	assert.Same(t, bb, h)

	h, err = proxy.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, h)

	reg.Remove(remote.WindowManagerServiceID)
	assert.Nil(t, reg.Get(remote.WindowManagerServiceID))

	_, err = reg.OnRemoteRequest(ctx, 9, remote.NewParcel())
	assert.ErrorIs(t, err, remote.ErrUnknownCode)
	_, err = reg.OnRemoteRequest(ctx, remote.CodeResolve, remote.NewParcel())
	assert.ErrorIs(t, err, remote.ErrMissingField)
}

func TestGetSessionBrokerFollowsDefaultUser(t *testing.T) {
	ctx := context.Background()
	s := NewBootstrapBrokerStub(remote.InvalidUserID, nil, nil)
	proxy, ok := AsBootstrapBroker(&stubHandle{stub: s})
	require.True(t, ok)

	sb100, sb200 := sessionBroker("100"), sessionBroker("200")
	require.NoError(t, s.Connect(ctx, 100, 0, sb100))
	require.NoError(t, s.Connect(ctx, 200, 1, sb200))
	assert.Equal(t, int32(100), s.DefaultUser(), "first user becomes default")

	h, err := proxy.GetSessionBroker(ctx, remote.InvalidUserID)
	require.NoError(t, err)
	assert.Same(t, sb100, h)

	require.NoError(t, s.SwitchUser(ctx, 200))
	h, err = proxy.GetSessionBroker(ctx, remote.SystemUserID)
	require.NoError(t, err)
	assert.Same(t, sb200, h)

	require.NoError(t, s.Disconnect(ctx, 100))
	h, err = proxy.GetSessionBroker(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, h, "disconnected users have no session broker")

	h, err = proxy.GetScreenBrokerLite(ctx)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestAdminOperationsValidateUsers(t *testing.T) {
	ctx := context.Background()
	s := NewBootstrapBrokerStub(100, nil, nil)

	assert.ErrorIs(t, s.Connect(ctx, 0, 0, sessionBroker("x")), remote.ErrInvalidArgument)
	assert.ErrorIs(t, s.Connect(ctx, 100, 0, nil), remote.ErrInvalidArgument)
	assert.ErrorIs(t, s.SwitchUser(ctx, 300), ErrNoSession)
	assert.ErrorIs(t, s.Disconnect(ctx, 300), ErrNoSession)
	assert.ErrorIs(t, s.Recover(ctx, 300, sessionBroker("x")), ErrNoSession)
	assert.ErrorIs(t, s.Recover(ctx, 100, nil), remote.ErrInvalidArgument)
}

func TestPushesReachInterestedListeners(t *testing.T) {
	ctx := context.Background()
	s := NewBootstrapBrokerStub(remote.InvalidUserID, nil, nil)

	follower := &clientHandle{}
	pinned := &clientHandle{}
	register(t, s, follower, remote.InvalidUserID, false)
	register(t, s, pinned, 200, true)
	register(t, s, pinned, 200, true)
	assert.Len(t, s.Listeners(), 2, "registration is idempotent")

	sb100, sb200 := sessionBroker("100"), sessionBroker("200")
	require.NoError(t, s.Connect(ctx, 100, 0, sb100))
	require.NoError(t, s.Connect(ctx, 200, 1, sb200))

	assert.Equal(t, []push{{code: remote.CodeConnectionChanged, userID: 100, connected: true, broker: sb100}}, follower.received())
	assert.Equal(t, []push{{code: remote.CodeConnectionChanged, userID: 200, connected: true, broker: sb200}}, pinned.received())

	require.NoError(t, s.SwitchUser(ctx, 200))
	assert.Len(t, follower.received(), 2)
	assert.Equal(t, int32(200), follower.received()[1].userID)
	assert.Len(t, pinned.received(), 2)

	restarted := sessionBroker("200b")
	require.NoError(t, s.Recover(ctx, 200, restarted))
	assert.Equal(t, push{code: remote.CodeServiceRecovered, broker: restarted}, follower.received()[2])
	assert.Equal(t, push{code: remote.CodeServiceRecovered, broker: restarted}, pinned.received()[2])
}

func TestLateListenerIsToldAboutConnection(t *testing.T) {
	ctx := context.Background()
	s := NewBootstrapBrokerStub(remote.InvalidUserID, nil, nil)
	sb := sessionBroker("100")
	require.NoError(t, s.Connect(ctx, 100, 4, sb))

	late := &clientHandle{}
	register(t, s, late, 100, false)

	require.Eventually(t, func() bool { return len(late.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, push{code: remote.CodeConnectionChanged, userID: 100, connected: true, broker: sb}, late.received()[0])
}

func TestListenerRemovedWhenClientDies(t *testing.T) {
	ctx := context.Background()
	s := NewBootstrapBrokerStub(remote.InvalidUserID, nil, nil)
	client := &clientHandle{}
	register(t, s, client, 100, false)
	require.Len(t, s.Listeners(), 1)
	assert.WithinDuration(t, time.Now(), s.Listeners()[0].RegisteredAt, time.Minute)

	client.kill()
	assert.Empty(t, s.Listeners())

	require.NoError(t, s.Connect(ctx, 100, 0, sessionBroker("100")))
	assert.Empty(t, client.received())
}

func TestDeadClientIsNotRegistered(t *testing.T) {
	ctx := context.Background()
	s := NewBootstrapBrokerStub(remote.InvalidUserID, nil, nil)
	client := &clientHandle{}
	client.kill()

	register(t, s, client, 100, false)
	assert.Empty(t, s.Listeners())

	require.NoError(t, s.Connect(ctx, 100, 0, sessionBroker("100")))
	assert.Empty(t, client.received())
}

func TestUnregisterListener(t *testing.T) {
	ctx := context.Background()
	s := NewBootstrapBrokerStub(remote.InvalidUserID, nil, nil)
	client := &clientHandle{}
	register(t, s, client, 100, false)

	data := remote.NewParcel().
		WriteHandle(remote.KeyListener, client).
		WriteInt32(remote.KeyUserID, 100).
		WriteBool(remote.KeyLite, false)
	_, err := s.OnRemoteRequest(ctx, remote.CodeUnregisterRecoverListener, data)
	require.NoError(t, err)
	assert.Empty(t, s.Listeners())
	assert.Empty(t, client.recipients, "death link removed")

	_, err = s.OnRemoteRequest(ctx, remote.CodeRegisterRecoverListener,
		remote.NewParcel().WriteHandle(remote.KeyListener, nil))
	assert.ErrorIs(t, err, remote.ErrInvalidArgument)
}

func TestDomainStubs(t *testing.T) {
	ctx := context.Background()
	domain := &stubHandle{stub: NewDomainStub("d")}
	lite := &stubHandle{stub: NewDomainLiteStub("l")}
	sb, ok := AsSessionBroker(&stubHandle{stub: NewSessionBrokerStub(domain, lite)})
	require.True(t, ok)

	h, err := sb.GetDomainProxy(ctx)
	require.NoError(t, err)
	assert.Same(t, domain, h)
	h, err = sb.GetDomainProxyLite(ctx)
	require.NoError(t, err)
	assert.Same(t, lite, h)

	d, ok := AsDomain(lite)
	require.True(t, ok)
	label, err := d.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "l", label)

	_, ok = AsDomain(&stubHandle{stub: NewRegistryStub()})
	assert.False(t, ok)
	_, ok = AsBootstrapBroker(domain)
	assert.False(t, ok)
}

func TestLiteDomainSessionListeners(t *testing.T) {
	ctx := context.Background()
	lite := NewDomainLiteStub("l")
	first, second := &clientHandle{}, &clientHandle{}

	call := func(code uint32, data *remote.Parcel) error {
		_, err := lite.OnRemoteRequest(ctx, code, data)
		return err
	}
	require.NoError(t, call(remote.CodeRegisterSessionListener, remote.NewParcel().WriteHandle(remote.KeyListener, first)))
	require.NoError(t, call(remote.CodeRegisterSessionListener,
		remote.NewParcel().WriteHandle(remote.KeyListener, second).WriteBool(remote.KeyRecover, true)))
	require.NoError(t, call(remote.CodeRegisterSessionListener,
		remote.NewParcel().WriteHandle(remote.KeyListener, first).WriteBool(remote.KeyRecover, true)))
	assert.Equal(t, []SessionListener{
		{Handle: first, Recovered: true},
		{Handle: second, Recovered: true},
	}, lite.SessionListeners())

	require.NoError(t, call(remote.CodeUnregisterSessionListener, remote.NewParcel().WriteHandle(remote.KeyListener, first)))
	assert.Equal(t, []SessionListener{{Handle: second, Recovered: true}}, lite.SessionListeners())

	assert.ErrorIs(t, call(remote.CodeRegisterSessionListener, remote.NewParcel().WriteHandle(remote.KeyListener, nil)), remote.ErrInvalidArgument)
	assert.ErrorIs(t, call(remote.CodeRegisterSessionListener, remote.NewParcel()), remote.ErrMissingField)

	full := NewDomainStub("d")
	_, err := full.OnRemoteRequest(ctx, remote.CodeRegisterSessionListener, remote.NewParcel().WriteHandle(remote.KeyListener, first))
	assert.ErrorIs(t, err, remote.ErrUnknownCode, "the full domain service keeps no session listeners")
}
