package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medicore/clinic-api/internal/config"
	"github.com/medicore/clinic-api/internal/middleware"
)

// Handler registers a route group on the API router.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	handlers []Handler
	metrics  *routerMetrics
	registry *prometheus.Registry
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

func NewRouter(cfg config.RateLimitConfig, handlers ...Handler) *Router {
	gin.SetMode(gin.ReleaseMode)
	middleware.RegisterValidators()
	engine := gin.New()

	r := &Router{
		engine:   engine,
		handlers: handlers,
		metrics:  initRouterMetrics("clinic_api"),
		registry: prometheus.NewRegistry(),
	}
	r.registry.MustRegister(
		r.metrics.requestDuration,
		r.metrics.requestTotal,
		r.metrics.errorTotal,
	)

	engine.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
	)

	if cfg.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst)
		engine.Use(limiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	r.engine.GET("/metrics", gin.WrapH(
		promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	for _, h := range r.handlers {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string) *routerMetrics {
	return &routerMetrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "type"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		status := fmt.Sprintf("%d", c.Writer.Status())
		duration := time.Since(start).Seconds()

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		if c.Writer.Status() >= 400 {
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "http").Inc()
		}
	}
}
