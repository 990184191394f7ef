// Package bootstrap assembles the storage, connectors and services shared by the HTTP
// server and the operator CLI.
package bootstrap

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/cveintel/internal/app"
	"github.com/charlesng35/cveintel/internal/app/maintenance"
	"github.com/charlesng35/cveintel/internal/cache"
	"github.com/charlesng35/cveintel/internal/connectors"
	"github.com/charlesng35/cveintel/internal/database"
	"github.com/charlesng35/cveintel/internal/fetch"
	"github.com/charlesng35/cveintel/internal/llm"
	"github.com/charlesng35/cveintel/internal/realtime"
	"github.com/charlesng35/cveintel/internal/security"
	"github.com/charlesng35/cveintel/internal/services"
	"github.com/charlesng35/cveintel/pkg/logger"
)

// Services bundles the long-lived domain components. The Cleaner is constructed but not
// started; callers decide whether to schedule it.
type Services struct {
	DB       *gorm.DB
	Store    *cache.IntelStore
	Feeds    *cache.DatabaseStore
	Intel    *services.IntelService
	Analysis *services.AnalysisService
	Cleaner  *maintenance.Cleaner
	Events   *realtime.Hub
	Audit    *security.AuditService
}

// NewServices opens the database and wires connectors and services from cfg. On failure
// anything already opened is released.
func NewServices(cfg *app.Config, log *zap.Logger) (_ *Services, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	svc := &Services{Events: realtime.NewHub()}
	defer func() {
		if err != nil {
			svc.Close(log)
		}
	}()

	svc.DB, err = openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	svc.Store, err = cache.NewIntelStore(svc.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise intel store: %w", err)
	}
	svc.Feeds = cache.NewDatabaseStore(svc.DB)

	client := fetch.New(fetch.Config{
		Timeout:       cfg.Fetch.Timeout,
		AllowInsecure: cfg.Fetch.AllowInsecure,
		UserAgent:     cfg.Fetch.UserAgent,
	})
	nvd := connectors.NewNVD(client, connectors.NVDConfig{
		BaseURL: cfg.Providers.NVD.BaseURL,
		APIKey:  cfg.Providers.NVD.APIKey,
	})
	kev := connectors.NewKEV(client, svc.Feeds, connectors.KEVConfig{
		FeedURL:      cfg.Providers.KEV.FeedURL,
		FeedCacheTTL: cfg.Providers.KEV.FeedCacheTTL,
	})
	epss := connectors.NewEPSS(client, connectors.EPSSConfig{BaseURL: cfg.Providers.EPSS.BaseURL})

	svc.Intel, err = services.NewIntelService(svc.Store, nvd, kev, epss)
	if err != nil {
		return nil, fmt.Errorf("initialise intel service: %w", err)
	}
	svc.Intel.SetEventHub(svc.Events)

	var generator llm.Generator
	if cfg.LLM.Enabled {
		generator = llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
		log.Info("analysis generation enabled", zap.String("model", cfg.LLM.Model))
	}
	svc.Analysis, err = services.NewAnalysisService(svc.Store, generator)
	if err != nil {
		return nil, fmt.Errorf("initialise analysis service: %w", err)
	}
	svc.Analysis.SetEventHub(svc.Events)

	svc.Cleaner = maintenance.NewCleaner(svc.Store, svc.Feeds,
		maintenance.WithIntelSchedule(cfg.Maintenance.IntelSchedule),
		maintenance.WithFeedSchedule(cfg.Maintenance.FeedSchedule),
		maintenance.WithJobTimeout(cfg.Maintenance.JobTimeout),
		maintenance.WithEventHub(svc.Events),
	)
	svc.Audit = security.NewAuditService(svc.DB, cfg)

	return svc, nil
}

// Close releases the database handle.
func (s *Services) Close(log *zap.Logger) {
	if s == nil || s.DB == nil {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := database.Close(s.DB); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
	s.DB = nil
}

func openDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := DatabaseConfig(cfg)
	db, err := database.OpenAndMigrate(dbCfg)
	if err != nil {
		return nil, err
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

// DatabaseConfig maps application settings onto the driver level configuration.
func DatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}
