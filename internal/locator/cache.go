package locator

import (
	"fmt"
	"sync"

	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// slot holds one cached handle and the death registration made for it.
type slot struct {
	mu     sync.Mutex
	handle remote.Handle
	reg    *DeathRegistration
}

// detachLocked drops the slot's content. Callers hold s.mu.
func (s *slot) detachLocked() remote.Handle {
	old := s.handle
	s.reg.Detach()
	s.handle, s.reg = nil, nil
	return old
}

// ProxyCache keeps one handle per layer, each behind its own lock. A
// handle and its death registration enter and leave a slot together.
type ProxyCache struct {
	watcher DeathWatcher
	slots   [layerCount]slot
}

// NewProxyCache creates an empty cache.
func NewProxyCache() *ProxyCache {
	return &ProxyCache{}
}

// Load returns the handle cached for layer, or nil.
func (c *ProxyCache) Load(layer LayerID) remote.Handle {
	if !layer.valid() {
		return nil
	}
	s := &c.slots[layer]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// fill returns the cached handle of layer or, when the slot is empty,
// fetches one and stores it with a death registration, all under the slot
// lock. fresh reports whether fetch ran and its result was stored. Nothing
// is stored when fetch fails or the fetched handle is already dead.
func (c *ProxyCache) fill(layer LayerID, fetch func() (remote.Handle, error), onDeath func(LayerID, remote.Handle)) (h remote.Handle, fresh bool, err error) {
	s := &c.slots[layer]
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return s.handle, false, nil
	}

	h, err = fetch()
	if err != nil {
		return nil, false, err
	}
	if h == nil {
		return nil, false, fmt.Errorf("%w: %s returned no object", remote.ErrUnavailable, layer)
	}

	reg, err := c.watcher.Watch(h, func(dead remote.Handle) { onDeath(layer, dead) })
	if err != nil {
		return nil, false, err
	}
	s.handle, s.reg = h, reg
	return h, true, nil
}

// Store puts h into layer, detaching whatever the slot held. Storing the
// handle the slot already holds keeps the existing registration. Storing a
// dead proxy empties the slot and returns remote.ErrDeadObject.
func (c *ProxyCache) Store(layer LayerID, h remote.Handle, onDeath func(LayerID, remote.Handle)) error {
	if !layer.valid() {
		return fmt.Errorf("%w: layer %d", remote.ErrInvalidArgument, layer)
	}
	if h == nil {
		c.Clear(layer)
		return nil
	}

	s := &c.slots[layer]
	s.mu.Lock()
	defer s.mu.Unlock()

	if remote.SameHandle(s.handle, h) {
		return nil
	}
	s.detachLocked()

	reg, err := c.watcher.Watch(h, func(dead remote.Handle) { onDeath(layer, dead) })
	if err != nil {
		return err
	}
	s.handle, s.reg = h, reg
	return nil
}

// Clear empties layer and returns the handle it held.
func (c *ProxyCache) Clear(layer LayerID) remote.Handle {
	if !layer.valid() {
		return nil
	}
	s := &c.slots[layer]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detachLocked()
}

// Invalidate empties layer only while it still holds h, so a notification
// about a handle that was already replaced changes nothing.
func (c *ProxyCache) Invalidate(layer LayerID, h remote.Handle) bool {
	if !layer.valid() || h == nil {
		return false
	}
	s := &c.slots[layer]
	s.mu.Lock()
	defer s.mu.Unlock()
	if !remote.SameHandle(s.handle, h) {
		return false
	}
	s.detachLocked()
	return true
}
