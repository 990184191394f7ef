package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cveintel/internal/handlers"
)

func registerIntelRoutes(api *gin.RouterGroup, handler *handlers.IntelHandler, events *handlers.RealtimeHandler) {
	if api == nil || handler == nil {
		return
	}

	group := api.Group("/intel")
	{
		group.GET("/search", handler.Search)
		group.GET("/cves/:id", handler.Get)
		group.GET("/cves/:id/assessment", handler.Assessment)
		group.POST("/analysis", handler.Analysis)
		group.POST("/maintenance/sweep", handler.Sweep)
		group.GET("/events", events.Stream)
	}
}
