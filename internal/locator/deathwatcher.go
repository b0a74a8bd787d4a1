package locator

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// DeathWatcher links death notifications to remote handles.
type DeathWatcher struct{}

// DeathRegistration is one link made by Watch. Detach it before the handle
// it watches is dropped from a cache slot.
type DeathRegistration struct {
	handle    remote.Handle
	recipient *recipient
}

type recipient struct {
	armed   atomic.Bool
	once    sync.Once
	onDeath func(remote.Handle)
}

func (r *recipient) OnRemoteDied(h remote.Handle) {
	if !r.armed.Load() {
		return
	}
	r.once.Do(func() { r.onDeath(h) })
}

// Watch calls onDeath at most once when the process behind h dies. Handles
// to in-process objects never die and yield a nil registration. A proxy
// whose process is already gone yields remote.ErrDeadObject.
func (DeathWatcher) Watch(h remote.Handle, onDeath func(remote.Handle)) (*DeathRegistration, error) {
	if h == nil || onDeath == nil {
		return nil, fmt.Errorf("%w: watch needs a handle and a callback", remote.ErrInvalidArgument)
	}
	if !h.IsProxy() {
		return nil, nil
	}

	r := &recipient{onDeath: onDeath}
	r.armed.Store(true)
	if !h.AddDeathRecipient(r) {
		return nil, fmt.Errorf("%w: %s", remote.ErrDeadObject, h.Descriptor())
	}
	return &DeathRegistration{handle: h, recipient: r}, nil
}

// Handle returns the watched handle.
func (d *DeathRegistration) Handle() remote.Handle {
	if d == nil {
		return nil
	}
	return d.handle
}

// Detach disarms the registration and unlinks it. A notification already
// in flight is dropped. Detach is safe on a nil registration and idempotent.
func (d *DeathRegistration) Detach() {
	if d == nil {
		return
	}
	if d.recipient.armed.Swap(false) {
		d.handle.RemoveDeathRecipient(d.recipient)
	}
}
