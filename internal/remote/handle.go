package remote

import "context"

// Handle is a reference to a possibly remote object.
//
// Implementations must be comparable (pointer types) because handles are
// compared by identity when deciding whether a cached reference is still the
// one a death notification refers to.
type Handle interface {
	// Descriptor is the interface token of the object behind the handle.
	Descriptor() string

	// IsProxy reports whether the object lives in another process. Only
	// proxies deliver death notifications.
	IsProxy() bool

	// AddDeathRecipient links r to the lifetime of the remote process. It
	// returns false when the handle is not a proxy or the process is
	// already gone. Adding the same recipient twice keeps one link.
	AddDeathRecipient(r DeathRecipient) bool

	// RemoveDeathRecipient unlinks r. It reports whether r was linked.
	RemoveDeathRecipient(r DeathRecipient) bool

	// Transact sends one request to the object and waits for its reply.
	Transact(ctx context.Context, code uint32, data *Parcel) (*Parcel, error)
}

// DeathRecipient is notified when the process behind a proxy dies.
// OnRemoteDied runs on a transport goroutine.
type DeathRecipient interface {
	OnRemoteDied(h Handle)
}

// DeathRecipientFunc adapts a plain function to DeathRecipient. Function
// values are not comparable, so register a pointer to it:
//
//	fn := remote.DeathRecipientFunc(onDeath)
//	h.AddDeathRecipient(&fn)
type DeathRecipientFunc func(h Handle)

// OnRemoteDied calls f(h).
func (f *DeathRecipientFunc) OnRemoteDied(h Handle) { (*f)(h) }

// Stub is the serving side of an object.
type Stub interface {
	Descriptor() string
	OnRemoteRequest(ctx context.Context, code uint32, data *Parcel) (*Parcel, error)
}

// SameHandle reports whether a and b refer to the same object reference.
func SameHandle(a, b Handle) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}
