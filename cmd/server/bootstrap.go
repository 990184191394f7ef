package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/cveintel/internal/api"
	"github.com/charlesng35/cveintel/internal/app"
	"github.com/charlesng35/cveintel/internal/bootstrap"
	"github.com/charlesng35/cveintel/internal/models"
	"github.com/charlesng35/cveintel/internal/monitoring"
	"github.com/charlesng35/cveintel/internal/monitoring/checks"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	*bootstrap.Services
	Monitoring *monitoring.Module
	Router     *gin.Engine
}

// bootstrapRuntime initialises monitoring, the shared services, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.Monitoring, err = monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)

	stack.Services, err = bootstrap.NewServices(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Maintenance.Enabled {
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	registerHealthChecks(stack.Monitoring.Health(), stack.DB, cfg)

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:      cfg,
		Intel:       stack.Intel,
		Analysis:    stack.Analysis,
		Maintenance: stack.Cleaner,
		Monitoring:  stack.Monitoring,
		Events:      stack.Events,
		Audit:       stack.Audit,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func registerHealthChecks(manager *monitoring.HealthManager, db *gorm.DB, cfg *app.Config) {
	if manager == nil {
		return
	}
	manager.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.CheckResult {
		return monitoring.CheckResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(checks.Database(db, models.IntelRecord{}.TableName(), 0))
	manager.RegisterReadiness(checks.Upstreams(cfg.Monitoring.Health.UpstreamFailureThreshold))
	if cfg.Maintenance.Enabled {
		manager.RegisterReadiness(checks.Maintenance(cfg.Monitoring.Health.MaintenanceMaxAge))
	}
}

// Shutdown stops background jobs, runs a final sweep and releases the database.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil || s.Services == nil {
		return
	}

	if s.Cleaner != nil {
		if stopCtx := s.Cleaner.Stop(); stopCtx != nil {
			<-stopCtx.Done()
		}
		if _, err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown sweep failed", zap.Error(err))
		}
	}

	s.Close(log)
}
