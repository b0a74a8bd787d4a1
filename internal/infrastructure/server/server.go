package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/openharmony/window-window-manager-sub028/internal/api/http"
	"github.com/openharmony/window-window-manager-sub028/internal/api/middleware"
	"github.com/openharmony/window-window-manager-sub028/internal/binder"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/config"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/logging"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/monitoring"
)

const shutdownTimeout = 5 * time.Second

// daemon is what locatord and brokerd share: a binder endpoint serving
// published objects and an admin HTTP server.
type daemon struct {
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	gatherer *prometheus.Registry

	pool     *binder.Pool
	endpoint *binder.Endpoint
	objects  net.Listener

	admin     *http.Server
	adminLis  net.Listener
	adminAddr string
}

func newLogger(cfg config.LogConfig) *logging.Logger {
	logger, err := logging.New(logging.Config{Level: cfg.Level, Development: cfg.Development})
	if err != nil {
		logger = logging.NewDefault()
		logger.Warn("Invalid log level, using defaults", zap.String("level", cfg.Level), zap.Error(err))
	}
	return logger
}

// newDaemon binds both listeners. The endpoint is advertised as advertise,
// or as the bound address when advertise is empty.
func newDaemon(cfg *config.Config, name, listenAddr, advertise, adminAddr string, dialTimeout time.Duration) (*daemon, error) {
	logger := newLogger(cfg.Logging)
	gatherer := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(gatherer)

	objects, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", listenAddr, err)
	}
	adminLis, err := net.Listen("tcp", adminAddr)
	if err != nil {
		objects.Close()
		return nil, fmt.Errorf("listen admin %s: %w", adminAddr, err)
	}
	if advertise == "" {
		advertise = objects.Addr().String()
	}

	poolCfg := binder.DefaultPoolConfig()
	poolCfg.DialTimeout = dialTimeout
	pool := binder.NewPool(poolCfg, logger.Component(name), metrics)

	d := &daemon{
		logger:    logger,
		metrics:   metrics,
		gatherer:  gatherer,
		pool:      pool,
		endpoint:  binder.NewEndpoint(advertise, pool, logger.Component(name), metrics),
		objects:   objects,
		adminLis:  adminLis,
		adminAddr: adminLis.Addr().String(),
	}
	return d, nil
}

// serveAdmin installs the admin router.
func (d *daemon) serveAdmin(cfg *config.Config, routes ...apihttp.Routes) {
	router := apihttp.NewRouter(apihttp.RouterConfig{
		Development: cfg.Logging.Development,
		CORS:        middleware.DefaultCORSConfig(),
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		RateLimitEnabled: cfg.RateLimit.Enabled,
	}, d.logger.Logger, d.metrics, d.gatherer, routes...)

	d.admin = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.RateLimit.Enabled {
		d.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}
}

// run serves until ctx is done or a server fails, then stops both servers
// and closes the pool. extra runs alongside the servers and must return
// once its context is done.
func (d *daemon) run(ctx context.Context, extra func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.endpoint.Serve(d.objects)
	})
	g.Go(func() error {
		d.logger.Info("Serving admin API", zap.String("addr", d.adminAddr))
		if err := d.admin.Serve(d.adminLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	if extra != nil {
		g.Go(func() error { return extra(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		d.shutdown()
		return nil
	})

	err := g.Wait()
	_ = d.logger.Sync()
	return err
}

func (d *daemon) shutdown() {
	d.logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.admin.Shutdown(ctx); err != nil {
		d.logger.Warn("Admin server shutdown", zap.Error(err))
	}
	d.endpoint.GracefulStop()
	d.pool.Close()
}
