package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/radar/internal/http/handler"
)

func RunRouter(rg *gin.RouterGroup, h *handler.RunHandler) {
	rg.POST("", h.Trigger)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
}
