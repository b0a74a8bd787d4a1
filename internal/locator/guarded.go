package locator

import "sync"

// guarded is an optional callback behind its own lock. The callback runs
// with the lock held, so it must not block or set itself again.
type guarded[F any] struct {
	mu sync.Mutex
	fn F
	ok bool
}

func (g *guarded[F]) set(fn F) {
	g.mu.Lock()
	g.fn, g.ok = fn, true
	g.mu.Unlock()
}

func (g *guarded[F]) reset() {
	var zero F
	g.mu.Lock()
	g.fn, g.ok = zero, false
	g.mu.Unlock()
}

// call runs invoke with the callback and reports whether one was set.
func (g *guarded[F]) call(invoke func(F)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ok {
		return false
	}
	invoke(g.fn)
	return true
}
