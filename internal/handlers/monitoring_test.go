package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/cveintel/internal/app"
	"github.com/charlesng35/cveintel/internal/monitoring"
)

func TestMonitoringHandlerSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)

	monitoring.RecordCacheLookup("composite", "hit")
	monitoring.RecordMaintenanceRun("intel_sweep", "success", "", 3, 200*time.Millisecond)

	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	handler := NewMonitoringHandler(mod, cfg)
	require.NotNil(t, handler)

	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request, _ = http.NewRequest(http.MethodGet, "/api/monitoring/summary", nil)

	handler.Summary(ctx)
	require.Equal(t, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	require.Contains(t, body, `"success":true`)
	require.Contains(t, body, `"hits":1`)
	require.Contains(t, body, `"job":"intel_sweep"`)
	require.Contains(t, body, `"endpoint":"/metrics"`)
}

func TestMonitoringHandlerDisabled(t *testing.T) {
	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)

	require.Nil(t, NewMonitoringHandler(mod, &app.Config{}))
	require.Nil(t, NewMonitoringHandler(nil, &app.Config{}))
}
