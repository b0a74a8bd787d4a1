package binder

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// Proxy is a handle to an object published by another endpoint.
type Proxy struct {
	ref  Ref
	conn *conn
}

var _ remote.Handle = (*Proxy)(nil)

// Ref returns the wire reference of the object.
func (p *Proxy) Ref() Ref { return p.ref }

// Descriptor returns the interface token of the remote object.
func (p *Proxy) Descriptor() string { return p.ref.Descriptor }

// IsProxy always returns true.
func (p *Proxy) IsProxy() bool { return true }

// AddDeathRecipient links r to the connection carrying this proxy.
func (p *Proxy) AddDeathRecipient(r remote.DeathRecipient) bool {
	if r == nil {
		return false
	}
	return p.conn.link(p, r)
}

// RemoveDeathRecipient unlinks r.
func (p *Proxy) RemoveDeathRecipient(r remote.DeathRecipient) bool {
	if r == nil {
		return false
	}
	return p.conn.unlink(p, r)
}

// Alive reports whether the connection carrying this proxy is still up.
func (p *Proxy) Alive() bool { return !p.conn.isDead() }

// Transact sends one request to the remote object.
func (p *Proxy) Transact(ctx context.Context, code uint32, data *remote.Parcel) (*remote.Parcel, error) {
	if p.conn.isDead() {
		return nil, fmt.Errorf("%w: %s", remote.ErrDeadObject, p.ref)
	}
	req, err := encodeRequest(p.ref, code, data)
	if err != nil {
		return nil, err
	}
	reply := new(structpb.Struct)
	if err := p.conn.cc.Invoke(ctx, transactMethod, req, reply); err != nil {
		return nil, fmt.Errorf("transact %d on %s: %w", code, p.ref, fromStatus(err))
	}
	out, err := decodeParcel(ctx, reply, p.conn.pool.resolve)
	if err != nil {
		return nil, fmt.Errorf("%w: reply from %s: %v", remote.ErrTransaction, p.ref, err)
	}
	return out, nil
}

// Local is a handle to an object published by this process. Calls go
// straight to the stub.
type Local struct {
	ref  Ref
	stub remote.Stub
}

var _ remote.Handle = (*Local)(nil)

// Ref returns the wire reference of the object.
func (l *Local) Ref() Ref { return l.ref }

// Stub returns the published stub.
func (l *Local) Stub() remote.Stub { return l.stub }

// Descriptor returns the stub's interface token.
func (l *Local) Descriptor() string { return l.stub.Descriptor() }

// IsProxy always returns false.
func (l *Local) IsProxy() bool { return false }

// AddDeathRecipient returns false: a local object cannot die separately
// from its caller.
func (l *Local) AddDeathRecipient(remote.DeathRecipient) bool { return false }

// RemoveDeathRecipient returns false.
func (l *Local) RemoveDeathRecipient(remote.DeathRecipient) bool { return false }

// Transact calls the stub directly.
func (l *Local) Transact(ctx context.Context, code uint32, data *remote.Parcel) (*remote.Parcel, error) {
	if data == nil {
		data = remote.NewParcel()
	}
	reply, err := l.stub.OnRemoteRequest(ctx, code, data)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		reply = remote.NewParcel()
	}
	return reply, nil
}
