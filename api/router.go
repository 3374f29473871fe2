package api

import (
    "github.com/gin-gonic/gin"

    "vodqueue/config"
    "vodqueue/task"
)

func SetupRouter(tm *task.Manager, cfg *config.Config) *gin.Engine {
    r := gin.Default()
    h := NewHandler(tm, cfg)

    // Health check
    r.GET("/health", h.handleHealth)

    v1 := r.Group("/api/v1")
    v1.Use(AuthMiddleware(cfg))
    {
        v1.POST("/downloads", h.handleEnqueue)
        v1.GET("/downloads", h.handleListDownloads)
        v1.POST("/downloads/clear", h.handleClearCompleted)
        v1.GET("/downloads/:id", h.handleGetDownload)
        v1.PATCH("/downloads/:id/cancel", h.handleCancel)
        v1.POST("/downloads/:id/retry", h.handleRetry)
        v1.DELETE("/downloads/:id", h.handleRemove)

        // Change signals for live views.
        v1.GET("/events", h.handleEvents)

        v1.GET("/files/:id", h.handleGetFile)
    }
    return r
}
