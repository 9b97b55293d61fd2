// Package http exposes the status surface of a running SynthonScout process:
// probes, Prometheus metrics and screening progress.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SynthonScout/internal/interfaces/http/handlers"
	"github.com/turtacn/SynthonScout/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler dependencies of the route tree.  Nil
// handlers leave their routes unregistered.
type RouterConfig struct {
	Mode            string
	HealthHandler   *handlers.HealthHandler
	ProgressHandler *handlers.ProgressHandler
	Metrics         http.Handler
	Logger          logging.Logger
}

// NewRouter constructs the gin engine serving /healthz, /readyz, /progress
// and /metrics.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig()))

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.ProgressHandler != nil {
		cfg.ProgressHandler.RegisterRoutes(r)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	return r
}
