package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	apihttp "github.com/openharmony/window-window-manager-sub028/internal/api/http"
	"github.com/openharmony/window-window-manager-sub028/internal/broker"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/config"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/resilience"
	"github.com/openharmony/window-window-manager-sub028/internal/locator"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// Locatord keeps a locator for one user warm against a broker and serves
// the locator admin API.
type Locatord struct {
	*daemon
	cfg      config.LocatorConfig
	registry *locator.Registry
	locator  *locator.Locator
}

// NewLocatord binds the listeners and builds the locator registry.
func NewLocatord(cfg *config.Config) (*Locatord, error) {
	lc := cfg.Locator
	d, err := newDaemon(cfg, "locatord", lc.ListenAddr, lc.AdvertiseAddr, lc.HTTPAddr, lc.DialTimeout)
	if err != nil {
		return nil, err
	}

	variant := locator.VariantFull
	if lc.Lite {
		variant = locator.VariantLite
	}
	registry := locator.NewRegistry(broker.NewBackend(d.pool, d.endpoint, lc.RegistryAddr), variant).
		WithLogger(d.logger.Logger).
		WithMetrics(d.metrics)

	s := &Locatord{
		daemon:   d,
		cfg:      lc,
		registry: registry,
		locator:  registry.Get(lc.UserID),
	}
	d.serveAdmin(cfg, apihttp.NewLocatorHandlers(registry, d.metrics, lc.CallTimeout))

	d.logger.Info("Locator daemon initialized",
		zap.String("registry_addr", lc.RegistryAddr),
		zap.String("advertise", d.endpoint.Address()),
		zap.Int32("user_id", lc.UserID),
		zap.Stringer("variant", variant),
	)
	return s, nil
}

// Registry returns the locator registry.
func (s *Locatord) Registry() *locator.Registry { return s.registry }

// Locator returns the locator of the configured user.
func (s *Locatord) Locator() *locator.Locator { return s.locator }

// AdminAddr returns the bound admin API address.
func (s *Locatord) AdminAddr() string { return s.adminAddr }

// Run serves until ctx is done.
func (s *Locatord) Run(ctx context.Context) error {
	return s.run(ctx, s.refresh)
}

// refresh subscribes to connection changes and then keeps resolving the
// primary layer, so the chain and the recover listener come back on their
// own after a broker restart. Resolves go through a breaker so an
// unreachable broker is tried with growing pauses.
func (s *Locatord) refresh(ctx context.Context) error {
	logger := s.logger.Component("refresh")
	subscribed := false
	breaker := resilience.New("refresh", resilience.Settings{
		Failures:    3,
		Cooldown:    s.cfg.Refresh,
		MaxCooldown: 30 * s.cfg.Refresh,
		OnStateChange: func(_ string, from, to resilience.State) {
			logger.Info("Refresh breaker state changed", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	tick := time.NewTicker(s.cfg.Refresh)
	defer tick.Stop()
	for {
		if !subscribed {
			subscribed = s.subscribe(ctx, logger)
		}
		err := breaker.Execute(func() error {
			return s.resolvePrimary(ctx)
		})
		if err != nil && !errors.Is(err, resilience.ErrOpen) {
			logger.Debug("Primary layer unavailable", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

func (s *Locatord) resolvePrimary(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	layer := s.locator.Variant().Primary()
	if s.locator.GetProxy(ctx, layer) == nil {
		return fmt.Errorf("%w: layer %s", remote.ErrUnavailable, layer)
	}
	return nil
}

func (s *Locatord) subscribe(ctx context.Context, logger *zap.Logger) bool {
	if err := s.locator.RegisterUserSwitchListener(func() {
		logger.Info("User switched")
	}); err != nil {
		logger.Warn("User switch listener not registered", zap.Error(err))
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	replayed, err := s.locator.RegisterConnectionChangedListener(cctx, func(userID, screenID int32, connected bool) {
		logger.Info("Connection changed",
			zap.Int32("user_id", userID),
			zap.Int32("screen_id", screenID),
			zap.Bool("connected", connected),
		)
	})
	if errors.Is(err, remote.ErrUnavailable) {
		// The callback is kept and fires once the broker is reachable.
		logger.Debug("Broker unreachable, connection listener pending", zap.Error(err))
		return true
	}
	if err != nil {
		logger.Warn("Connection listener not registered", zap.Error(err))
		return false
	}
	logger.Info("Subscribed to connection changes", zap.Bool("replayed", replayed))
	return true
}
