package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openharmony/window-window-manager-sub028/internal/api/middleware"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/monitoring"
)

// RouterConfig configures the admin router.
type RouterConfig struct {
	Development      bool
	CORS             middleware.CORSConfig
	RateLimit        middleware.RateLimitConfig
	RateLimitEnabled bool
}

// Routes is a set of handlers that add themselves to a router.
type Routes interface {
	Register(r gin.IRouter)
}

// NewRouter builds the admin router: the shared middleware stack, /health
// and /metrics, and the given routes. gatherer serves /metrics; a nil
// gatherer serves the default Prometheus registry.
func NewRouter(cfg RouterConfig, logger *zap.Logger, metrics *monitoring.Metrics, gatherer prometheus.Gatherer, routes ...Routes) *gin.Engine {
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(cfg.CORS))
	if cfg.RateLimitEnabled {
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	for _, r := range routes {
		r.Register(router)
	}
	return router
}
