package locator

import (
	"sync"

	"go.uber.org/zap"

	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/logging"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/monitoring"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// Registry maps user ids to locators. Every default user id shares one
// locator; any other id gets its own, created on first use and kept for the
// life of the registry.
type Registry struct {
	backend Backend
	variant Variant
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	def      *Locator
	locators map[int32]*Locator
}

// NewRegistry creates a registry building variant locators over backend.
func NewRegistry(backend Backend, variant Variant) *Registry {
	return &Registry{
		backend:  backend,
		variant:  variant,
		logger:   zap.NewNop(),
		locators: make(map[int32]*Locator),
	}
}

// WithLogger sets the logger handed to new locators.
func (r *Registry) WithLogger(logger *zap.Logger) *Registry {
	r.logger = logging.OrNop(logger)
	return r
}

// WithMetrics sets the metrics handed to new locators.
func (r *Registry) WithMetrics(metrics *monitoring.Metrics) *Registry {
	r.metrics = metrics
	return r
}

// Variant returns the variant of the registry's locators.
func (r *Registry) Variant() Variant { return r.variant }

// Default returns the locator of the default user.
func (r *Registry) Default() *Locator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.def == nil {
		r.def = r.newLocator(remote.InvalidUserID)
	}
	return r.def
}

// Get returns the locator of userID. Default user ids return Default().
func (r *Registry) Get(userID int32) *Locator {
	if remote.IsDefaultUser(userID) {
		return r.Default()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locators[userID]
	if !ok {
		l = r.newLocator(userID)
		r.locators[userID] = l
	}
	return l
}

// Lookup returns the locator of userID if one was created.
func (r *Registry) Lookup(userID int32) (*Locator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if remote.IsDefaultUser(userID) {
		return r.def, r.def != nil
	}
	l, ok := r.locators[userID]
	return l, ok
}

// Len returns the number of locators created so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.locators)
	if r.def != nil {
		n++
	}
	return n
}

// Each calls fn for the default locator, if created, and then every user
// locator. fn runs without the registry lock.
func (r *Registry) Each(fn func(*Locator)) {
	r.mu.Lock()
	all := make([]*Locator, 0, len(r.locators)+1)
	if r.def != nil {
		all = append(all, r.def)
	}
	for _, l := range r.locators {
		all = append(all, l)
	}
	r.mu.Unlock()

	for _, l := range all {
		fn(l)
	}
}

// newLocator runs under r.mu.
func (r *Registry) newLocator(userID int32) *Locator {
	l := New(userID, r.variant, r.backend, r.logger, r.metrics)
	r.metrics.IncLocators()
	r.logger.Debug("Locator created", zap.Int32("user_id", userID), zap.Stringer("variant", r.variant))
	return l
}
