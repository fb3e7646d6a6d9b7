package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/radar/internal/http/handler"
	"basegraph.app/radar/internal/http/middleware"
	"basegraph.app/radar/internal/queue"
	"basegraph.app/radar/internal/store"
)

type RouterConfig struct {
	AdminAPIKey string
	NewID       func() int64
}

func SetupRoutes(router *gin.Engine, producer queue.Producer, runs store.RunStore, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireAdminAPIKey(cfg.AdminAPIKey))
	{
		runHandler := handler.NewRunHandler(producer, runs, cfg.NewID)
		RunRouter(v1.Group("/runs"), runHandler)
	}
}
