package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		resources := api.Group("/resources")
		{
			resources.POST("/ingest", h.IngestURL)
			resources.GET("/:id", h.GetResource)
			resources.DELETE("/:id", h.DeleteResource)
		}

		feeds := api.Group("/feeds")
		{
			feeds.POST("/crawl", h.CrawlFeed)
		}

		outbox := api.Group("/outbox")
		{
			outbox.GET("/status", h.OutboxStatus)
			outbox.GET("/failed", h.ListFailed)
			outbox.GET("/events/:seq", h.GetEvent)
			outbox.POST("/events/:seq/replay", h.ReplayEvent)
			outbox.POST("/replay-failed", h.ReplayAllFailed)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
