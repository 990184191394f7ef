package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 20*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, "intel", cfg.Database.Postgres.Database)

	require.Equal(t, "nvd-key", cfg.Providers.NVD.APIKey)
	require.Equal(t, "https://services.nvd.nist.gov/rest/json/cves/2.0", cfg.Providers.NVD.BaseURL)
	require.Equal(t, "https://mirror.example.com/kev.json", cfg.Providers.KEV.FeedURL)
	require.Equal(t, 30*time.Minute, cfg.Providers.KEV.FeedCacheTTL)
	require.Equal(t, "https://epss.example.com/data/v1/epss", cfg.Providers.EPSS.BaseURL)

	require.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	require.False(t, cfg.Fetch.AllowInsecure)
	require.Equal(t, "intel-test", cfg.Fetch.UserAgent)

	require.True(t, cfg.LLM.Enabled)
	require.Equal(t, "sk-test", cfg.LLM.APIKey)
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.Equal(t, 45*time.Second, cfg.LLM.Timeout)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "*/15 * * * *", cfg.Maintenance.IntelSchedule)
	require.Equal(t, "@hourly", cfg.Maintenance.FeedSchedule)
	require.Equal(t, 2*time.Minute, cfg.Maintenance.JobTimeout)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/internal/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.EqualValues(t, 3, cfg.Monitoring.Health.UpstreamFailureThreshold)
	require.Equal(t, 3*time.Hour, cfg.Monitoring.Health.MaintenanceMaxAge)

	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/cveintel.sqlite", cfg.Database.Path)
	require.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	require.Equal(t, time.Hour, cfg.Providers.KEV.FeedCacheTTL)
	require.False(t, cfg.LLM.Enabled)
	require.Equal(t, "@hourly", cfg.Maintenance.IntelSchedule)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("CVEINTEL_SERVER_PORT", "7070")
	t.Setenv("CVEINTEL_PROVIDERS_NVD_API_KEY", "from-env")
	t.Setenv("CVEINTEL_FETCH_ALLOW_INSECURE", "true")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "from-env", cfg.Providers.NVD.APIKey)
	require.True(t, cfg.Fetch.AllowInsecure)
}
