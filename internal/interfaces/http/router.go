// Package http assembles the gin route tree and the HTTP server that serves
// the diagnosis API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/logging"
	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/healthsync/hybrid-engine/internal/interfaces/http/handlers"
	"github.com/healthsync/hybrid-engine/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware dependencies of the
// route tree.
type RouterConfig struct {
	Mode string // gin mode: "debug" | "release" | "test"

	AnalyzeHandler *handlers.AnalyzeHandler
	HealthHandler  *handlers.HealthHandler

	CORS    middleware.CORSConfig
	Logger  logging.Logger
	Metrics *prometheus.AppMetrics

	// MetricsHandler serves GET /metrics; nil disables the endpoint.
	MetricsHandler http.Handler
}

// NewRouter builds the engine's complete route tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Metrics(cfg.Metrics))

	if cfg.HealthHandler != nil {
		r.GET("/", cfg.HealthHandler.Banner)
		r.GET("/health", cfg.HealthHandler.Health)
		r.GET("/models/status", cfg.HealthHandler.ModelsStatus)
	}
	if cfg.AnalyzeHandler != nil {
		r.POST("/analyze", cfg.AnalyzeHandler.Analyze)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	return r
}
