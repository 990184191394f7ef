package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/cveintel/internal/app"
)

func TestNewServicesWiresComponents(t *testing.T) {
	cfg := &app.Config{
		Database: app.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "intel.sqlite")},
	}

	svc, err := NewServices(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close(zap.NewNop()) })

	require.NotNil(t, svc.Store)
	require.NotNil(t, svc.Feeds)
	require.NotNil(t, svc.Intel)
	require.NotNil(t, svc.Analysis)
	require.NotNil(t, svc.Cleaner)
	require.NotNil(t, svc.Events)
	require.NotNil(t, svc.Audit)
	require.True(t, svc.DB.Migrator().HasTable("intel_records"))

	stats, err := svc.Cleaner.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.IntelRecords)
}

func TestNewServicesRejectsUnknownDriver(t *testing.T) {
	_, err := NewServices(&app.Config{Database: app.DatabaseConfig{Driver: "oracle"}}, nil)
	require.Error(t, err)

	_, err = NewServices(nil, nil)
	require.Error(t, err)
}

func TestDatabaseConfig(t *testing.T) {
	cfg := &app.Config{Database: app.DatabaseConfig{
		Driver:   " PostgreSQL ",
		Postgres: app.DBAuthConfig{Host: " db ", Port: 5432, Database: "intel", Username: "u", Password: "p"},
	}}

	dbCfg := DatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db", dbCfg.Host)
	require.Equal(t, 5432, dbCfg.Port)
	require.Equal(t, "intel", dbCfg.Name)

	mysqlCfg := DatabaseConfig(&app.Config{Database: app.DatabaseConfig{
		Driver: "mysql",
		MySQL:  app.DBAuthConfig{Host: "my", Port: 3306, Database: "intel"},
	}})
	require.Equal(t, "mysql", mysqlCfg.Driver)
	require.Equal(t, 3306, mysqlCfg.Port)

	require.Equal(t, "sqlite", DatabaseConfig(&app.Config{}).Driver)
}

func TestCloseIsIdempotent(t *testing.T) {
	var svc *Services
	svc.Close(nil)

	svc = &Services{}
	svc.Close(nil)
}
