package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/cveintel/internal/app"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	return &app.Config{
		Database: app.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "intel.sqlite")},
		Maintenance: app.MaintenanceConfig{
			Enabled:       true,
			IntelSchedule: "@hourly",
			FeedSchedule:  "@hourly",
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
}

func TestBootstrapRuntimeWiresStack(t *testing.T) {
	stack, err := bootstrapRuntime(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.DB)
	require.NotNil(t, stack.Store)
	require.NotNil(t, stack.Intel)
	require.NotNil(t, stack.Analysis)
	require.NotNil(t, stack.Router)
	require.NotNil(t, stack.Events)
	require.True(t, stack.DB.Migrator().HasTable("intel_records"))

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/intel/cves/not-a-cve", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBootstrapRuntimeRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestShutdownToleratesPartialStack(t *testing.T) {
	var stack *runtimeStack
	stack.Shutdown(context.Background(), zap.NewNop())
	(&runtimeStack{}).Shutdown(context.Background(), zap.NewNop())
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := initTracing(app.TracingConfig{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
