package router

import (
	"github.com/gin-gonic/gin"

	"github.com/vitrine/backend/internal/interfaces/http/handler"
	"github.com/vitrine/backend/internal/interfaces/http/middleware"
)

// Handlers are the API handlers mounted under /api/<version>
type Handlers struct {
	System      *handler.SystemHandler
	Sync        *handler.SyncHandler
	Queue       *handler.QueueHandler
	Mirror      *handler.MirrorHandler
	Integration *handler.IntegrationHandler
	Webhook     *handler.WebhookHandler
}

// APIConfig holds the middleware placed in front of the API groups
type APIConfig struct {
	// Auth resolves the organization of every API request except webhooks
	Auth gin.HandlerFunc
	// WebhookLimit guards the public webhook endpoint, optional
	WebhookLimit gin.HandlerFunc
}

// APIGroups builds the route groups of the sync API
func APIGroups(h Handlers, cfg APIConfig) []*DomainGroup {
	scoped := []gin.HandlerFunc{cfg.Auth, middleware.TracingAttributeInjector()}

	syncGroup := NewDomainGroup("sync", "/sync").Use(scoped...)
	syncGroup.GET("/runs", h.Sync.ListRuns)
	syncGroup.GET("/runs/:run_id", h.Sync.GetRun)
	syncGroup.GET("/jobs", h.Sync.ListJobs)
	syncGroup.GET("/jobs/:job_id", h.Sync.GetJob)
	syncGroup.POST("/:entity_type/discover", h.Sync.Discover)
	syncGroup.POST("/:entity_type/pull", h.Sync.Pull)
	syncGroup.POST("/:entity_type/full", h.Sync.FullSync)
	syncGroup.POST("/:entity_type/specific", h.Sync.SyncSpecific)
	syncGroup.GET("/:entity_type/status", h.Sync.Status)

	queue := syncGroup.Group("queue", "/queue")
	queue.POST("", h.Queue.Add)
	queue.POST("/process", h.Sync.ProcessQueue)
	queue.GET("/status", h.Queue.Status)
	queue.GET("/items", h.Queue.List)
	queue.POST("/retry-failed", h.Queue.RetryAllFailed)
	queue.GET("/:id", h.Queue.Get)
	queue.POST("/:id/retry", h.Queue.Retry)
	queue.DELETE("/:id", h.Queue.Delete)

	mirror := NewDomainGroup("mirror", "/mirror").Use(scoped...)
	mirror.GET("/:entity_type", h.Mirror.List)
	mirror.POST("/:entity_type", h.Mirror.Create)
	mirror.GET("/:entity_type/:id", h.Mirror.Get)
	mirror.PUT("/:entity_type/:id", h.Mirror.Update)
	mirror.DELETE("/:entity_type/:id", h.Mirror.Delete)

	integrationGroup := NewDomainGroup("integration", "/integration").Use(scoped...)
	integrationGroup.GET("", h.Integration.Get)
	integrationGroup.PUT("", h.Integration.Configure)
	integrationGroup.DELETE("", h.Integration.Delete)
	integrationGroup.POST("/disable", h.Integration.Disable)
	integrationGroup.POST("/test", h.Integration.Test)

	system := NewDomainGroup("system", "/system").Use(scoped...)
	system.GET("/info", h.System.GetSystemInfo)

	// authenticated by signature, not by organization credentials
	webhooks := NewDomainGroup("webhooks", "/webhooks")
	if cfg.WebhookLimit != nil {
		webhooks.Use(cfg.WebhookLimit)
	}
	webhooks.POST("/:organization_id/:entity_type", h.Webhook.Receive)

	return []*DomainGroup{syncGroup, mirror, integrationGroup, system, webhooks}
}
