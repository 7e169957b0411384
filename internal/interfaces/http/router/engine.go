package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/infrastructure/logger"
	"github.com/vitrine/backend/internal/interfaces/http/handler"
	"github.com/vitrine/backend/internal/interfaces/http/middleware"
)

// EngineConfig configures the global middleware chain
type EngineConfig struct {
	Logger      *zap.Logger
	Mode        string
	MaxBodySize int64
	CORS        middleware.CORSConfig
	Security    middleware.SecurityConfig
	Tracing     middleware.TracingConfig
	Metrics     middleware.HTTPMetricsConfig
}

// NewEngine builds a gin engine with the global middleware chain and the
// unauthenticated health checks at /health and /ready
func NewEngine(cfg EngineConfig, system *handler.SystemHandler) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log.Named("http")))
	engine.Use(middleware.SecureWithConfig(cfg.Security))
	engine.Use(middleware.CORSWithConfig(cfg.CORS))
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	engine.Use(middleware.TracingWithConfig(cfg.Tracing))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(cfg.Metrics))

	if system != nil {
		engine.GET("/health", system.Health)
		engine.GET("/ready", system.Ready)
	}
	return engine
}
