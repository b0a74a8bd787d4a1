package locator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/logging"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/monitoring"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// FetchFunc obtains the handle of one layer from the handle of its parent.
// The root layer receives a nil parent. Returning a nil handle means the
// layer is unavailable.
type FetchFunc func(ctx context.Context, parent remote.Handle) (remote.Handle, error)

// LayerSpec describes one layer of a chain. The root layer is its own
// parent.
type LayerSpec struct {
	ID     LayerID
	Parent LayerID
	Fetch  FetchFunc
}

// Chain resolves layers parent-first and caches each in a ProxyCache.
//
// Lock order: a Get holds at most one slot lock at a time, and always
// resolves a parent before taking the child's lock.
type Chain struct {
	root     LayerID
	specs    map[LayerID]LayerSpec
	children map[LayerID][]LayerID
	cache    *ProxyCache
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	// fetched runs after a layer was fetched and stored, outside the slot
	// lock.
	fetched func(ctx context.Context, layer LayerID, h remote.Handle)
	// died runs after a death emptied a layer and its descendants.
	died func(layer LayerID, h remote.Handle)
}

// NewChain validates specs and builds a chain over cache. The first spec
// must be the root and every parent must be declared before its children.
func NewChain(specs []LayerSpec, cache *ProxyCache, logger *zap.Logger, metrics *monitoring.Metrics) (*Chain, error) {
	if len(specs) == 0 {
		return nil, errors.New("locator: empty chain")
	}
	if specs[0].ID != specs[0].Parent {
		return nil, fmt.Errorf("locator: first layer %s is not a root", specs[0].ID)
	}

	c := &Chain{
		root:     specs[0].ID,
		specs:    make(map[LayerID]LayerSpec, len(specs)),
		children: make(map[LayerID][]LayerID),
		cache:    cache,
		logger:   logging.OrNop(logger),
		metrics:  metrics,
	}
	for i, spec := range specs {
		if !spec.ID.valid() {
			return nil, fmt.Errorf("locator: invalid layer %d", spec.ID)
		}
		if spec.Fetch == nil {
			return nil, fmt.Errorf("locator: layer %s has no fetch", spec.ID)
		}
		if _, dup := c.specs[spec.ID]; dup {
			return nil, fmt.Errorf("locator: layer %s declared twice", spec.ID)
		}
		if i > 0 {
			if _, ok := c.specs[spec.Parent]; !ok || spec.Parent == spec.ID {
				return nil, fmt.Errorf("locator: layer %s has undeclared parent %s", spec.ID, spec.Parent)
			}
			c.children[spec.Parent] = append(c.children[spec.Parent], spec.ID)
		}
		c.specs[spec.ID] = spec
	}
	return c, nil
}

// Root returns the root layer.
func (c *Chain) Root() LayerID { return c.root }

// Has reports whether layer belongs to the chain.
func (c *Chain) Has(layer LayerID) bool {
	_, ok := c.specs[layer]
	return ok
}

// Get returns the handle of layer, resolving and caching missing ancestors
// first. It returns nil when any hop is unavailable; nothing is cached for
// the failing hop or below it.
func (c *Chain) Get(ctx context.Context, layer LayerID) remote.Handle {
	spec, ok := c.specs[layer]
	if !ok {
		return nil
	}
	if h := c.cache.Load(layer); h != nil {
		return h
	}

	var parent remote.Handle
	if spec.Parent != spec.ID {
		if parent = c.Get(ctx, spec.Parent); parent == nil {
			return nil
		}
	}

	h, fresh, err := c.cache.fill(layer, func() (remote.Handle, error) {
		return spec.Fetch(ctx, parent)
	}, c.onDeath)
	if err != nil {
		outcome := monitoring.OutcomeError
		if errors.Is(err, remote.ErrUnavailable) {
			outcome = monitoring.OutcomeUnavailable
		}
		c.metrics.RecordBootstrap(layer.String(), outcome)
		c.logger.Warn("Layer unavailable", zap.Stringer("layer", layer), zap.Error(err))
		return nil
	}
	if fresh {
		c.metrics.RecordBootstrap(layer.String(), monitoring.OutcomeOK)
		c.logger.Debug("Layer resolved", zap.Stringer("layer", layer), zap.String("descriptor", h.Descriptor()))
		if c.fetched != nil {
			c.fetched(ctx, layer, h)
		}
	}
	return h
}

// Install stores h in layer, replacing and detaching the previous handle.
// The layer's descendants are left alone.
func (c *Chain) Install(layer LayerID, h remote.Handle) error {
	if !c.Has(layer) {
		return fmt.Errorf("%w: layer %s not in chain", remote.ErrInvalidArgument, layer)
	}
	return c.cache.Store(layer, h, c.onDeath)
}

// ClearFrom empties layer and all of its descendants, root-first.
func (c *Chain) ClearFrom(layer LayerID) {
	if !c.Has(layer) {
		return
	}
	c.cache.Clear(layer)
	c.ClearBelow(layer)
}

// ClearBelow empties the descendants of layer, keeping layer itself.
func (c *Chain) ClearBelow(layer LayerID) {
	for _, child := range c.children[layer] {
		c.ClearFrom(child)
	}
}

// ClearAll empties every layer.
func (c *Chain) ClearAll() {
	c.ClearFrom(c.root)
}

func (c *Chain) onDeath(layer LayerID, h remote.Handle) {
	if !c.cache.Invalidate(layer, h) {
		c.logger.Debug("Stale death notification ignored", zap.Stringer("layer", layer))
		return
	}
	c.ClearBelow(layer)
	c.metrics.RecordDeath(layer.String())
	c.logger.Info("Remote died, layer cleared", zap.Stringer("layer", layer), zap.String("descriptor", h.Descriptor()))

	if c.died != nil {
		c.died(layer, h)
	}
}
