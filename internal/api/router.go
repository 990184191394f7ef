package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cveintel/internal/app"
	"github.com/charlesng35/cveintel/internal/handlers"
	"github.com/charlesng35/cveintel/internal/middleware"
	"github.com/charlesng35/cveintel/internal/monitoring"
	"github.com/charlesng35/cveintel/internal/realtime"
	"github.com/charlesng35/cveintel/internal/security"
)

// Dependencies bundles the services the HTTP layer exposes.
type Dependencies struct {
	Config      *app.Config
	Intel       handlers.IntelReader
	Analysis    handlers.AnalysisRequester
	Maintenance handlers.MaintenanceRunner
	Monitoring  *monitoring.Module
	Events      *realtime.Hub
	Audit       *security.AuditService
}

// NewRouter builds the Gin engine, wires middleware and registers the intelligence routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Intel == nil {
		return nil, fmt.Errorf("intel service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	registerHealthRoutes(r, deps.Config, deps.Monitoring)
	registerMetricsRoute(r, deps.Config, deps.Monitoring)

	api := r.Group("/api")

	intelHandler, err := handlers.NewIntelHandler(deps.Intel, deps.Analysis, deps.Maintenance)
	if err != nil {
		return nil, err
	}
	registerIntelRoutes(api, intelHandler, handlers.NewRealtimeHandler(deps.Events))

	registerMonitoringRoutes(api, handlers.NewMonitoringHandler(deps.Monitoring, deps.Config))
	if err := registerSecurityRoutes(api, deps.Audit); err != nil {
		return nil, err
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
