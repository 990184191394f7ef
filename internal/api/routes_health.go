package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cveintel/internal/app"
	"github.com/charlesng35/cveintel/internal/handlers"
	"github.com/charlesng35/cveintel/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if cfg == nil {
		return
	}

	var handler *handlers.HealthHandler
	if cfg.Monitoring.Health.Enabled && mon != nil {
		handler = handlers.NewHealthHandler(mon.Health())
	}

	for _, router := range []gin.IRouter{r, r.Group("/api")} {
		if handler == nil {
			router.GET("/health", handlers.DisabledHealth)
			router.GET("/health/live", handlers.DisabledHealth)
			router.GET("/health/ready", handlers.DisabledHealth)
			continue
		}
		router.GET("/health", handler.Overall)
		router.GET("/health/live", handler.Live)
		router.GET("/health/ready", handler.Ready)
	}
}
