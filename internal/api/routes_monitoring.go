package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cveintel/internal/app"
	"github.com/charlesng35/cveintel/internal/handlers"
	"github.com/charlesng35/cveintel/internal/monitoring"
)

func registerMonitoringRoutes(api *gin.RouterGroup, handler *handlers.MonitoringHandler) {
	if api == nil || handler == nil {
		return
	}

	group := api.Group("/monitoring")
	group.GET("/summary", handler.Summary)
}

func registerMetricsRoute(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if cfg == nil || mon == nil || !cfg.Monitoring.Prometheus.Enabled {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	r.GET(endpoint, gin.WrapH(mon.Handler()))
}
