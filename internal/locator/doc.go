/*
Package locator obtains and keeps the remote handles a process needs to
talk to the window manager.

# Chain

A handle to the domain service is reached in hops: the service registry
yields the bootstrap broker, the bootstrap broker yields the user's session
broker, and the session broker yields the domain service. Each hop is a
layer with its own cache slot and lock. Get resolves a missing layer's
parent first, then fetches and stores the layer while holding only that
layer's lock. A failed hop caches nothing and returns nil; callers retry.

	full: bootstrap -> session -> domain
	lite: bootstrap -> session -> domain-lite
	      bootstrap -> screen-lite

# Deaths

Every stored proxy carries a death registration. When a process dies the
layer it served is cleared together with its descendants, so a dead domain
service costs one hop to replace while a dead bootstrap broker forces the
whole chain to be resolved again. A notification about a handle that has
since been replaced is ignored.

# Pushes

The first time the bootstrap broker is resolved, the locator registers a
recover listener with it. The broker pushes two messages to it:
ServiceRecovered, after a session broker restarted, and ConnectionChanged,
when a user's connection or the active user changes. A
ConnectionChanged that makes another user active clears the session and
domain layers and notifies subscribers in the order disconnect, switch,
connect.

A lite locator also keeps the session listeners it registered with the
lite domain service. After ServiceRecovered or a user switch it registers
them again with the replacement service.

# Usage

	reg := locator.NewRegistry(backend, locator.VariantFull).WithLogger(logger)
	l := reg.Get(100)

	if h := l.GetDomainProxy(ctx); h != nil {
		reply, err := h.Transact(ctx, code, data)
		...
	}

	replayed, err := l.RegisterConnectionChangedListener(ctx, func(user, screen int32, connected bool) {
		...
	})
*/
package locator
