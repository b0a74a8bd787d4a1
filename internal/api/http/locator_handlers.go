package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/monitoring"
	"github.com/openharmony/window-window-manager-sub028/internal/locator"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// LocatorHandlers expose a locator registry.
type LocatorHandlers struct {
	registry *locator.Registry
	metrics  *monitoring.Metrics
	timeout  time.Duration
	started  time.Time
}

// NewLocatorHandlers creates handlers over registry. timeout bounds each
// resolve.
func NewLocatorHandlers(registry *locator.Registry, metrics *monitoring.Metrics, timeout time.Duration) *LocatorHandlers {
	return &LocatorHandlers{
		registry: registry,
		metrics:  metrics,
		timeout:  timeout,
		started:  time.Now(),
	}
}

// Register adds the locator routes to r.
func (h *LocatorHandlers) Register(r gin.IRouter) {
	r.GET("/status", h.Status)
	r.GET("/locators", h.ListLocators)
	r.GET("/locators/:user", h.GetLocator)
	r.POST("/locators/:user/resolve", h.Resolve)
	r.POST("/locators/:user/clear", h.Clear)
}

// Status returns registry totals and the metrics snapshot.
func (h *LocatorHandlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"variant":        h.registry.Variant().String(),
		"locators":       h.registry.Len(),
		"uptime_seconds": time.Since(h.started).Seconds(),
		"metrics":        h.metrics.GetSnapshot(),
	})
}

// ListLocators returns the status of every locator, ordered by user id.
func (h *LocatorHandlers) ListLocators(c *gin.Context) {
	var all []locator.Status
	h.registry.Each(func(l *locator.Locator) {
		all = append(all, l.Status())
	})
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"locators": all,
	})
}

// GetLocator returns one locator's status without creating it.
func (h *LocatorHandlers) GetLocator(c *gin.Context) {
	l, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"locator": l.Status(),
	})
}

// Resolve fetches a layer, bootstrapping the chain as needed. The layer
// query parameter defaults to the variant's domain layer. The locator is
// created if the user has none yet.
func (h *LocatorHandlers) Resolve(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	l := h.registry.Get(userID)

	layer := l.Variant().Primary()
	if name := c.Query("layer"); name != "" {
		parsed, err := locator.ParseLayer(name)
		if err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
		layer = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	handle := l.GetProxy(ctx, layer)
	if handle == nil {
		fail(c, http.StatusServiceUnavailable, fmt.Errorf("%w: layer %s", remote.ErrUnavailable, layer))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"layer":      layer.String(),
		"descriptor": handle.Descriptor(),
		"locator":    l.Status(),
	})
}

// Clear drops a locator's cached handles.
func (h *LocatorHandlers) Clear(c *gin.Context) {
	l, ok := h.lookup(c)
	if !ok {
		return
	}
	l.Clear()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"locator": l.Status(),
	})
}

func (h *LocatorHandlers) lookup(c *gin.Context) (*locator.Locator, bool) {
	userID, ok := userParam(c)
	if !ok {
		return nil, false
	}
	l, ok := h.registry.Lookup(userID)
	if !ok {
		fail(c, http.StatusNotFound, fmt.Errorf("no locator for user %d", userID))
		return nil, false
	}
	return l, true
}
