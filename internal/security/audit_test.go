package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/cveintel/internal/app"
	"github.com/charlesng35/cveintel/internal/cache"
	testutil "github.com/charlesng35/cveintel/internal/database/testutil"
	"github.com/charlesng35/cveintel/internal/intel"
)

func findCheck(t *testing.T, result Result, id string) Check {
	t.Helper()
	for _, check := range result.Checks {
		if check.ID == id {
			return check
		}
	}
	t.Fatalf("check %s not found", id)
	return Check{}
}

func TestAuditServiceRun(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	cfg := &app.Config{
		Providers: app.ProvidersConfig{
			NVD:  app.NVDConfig{BaseURL: "https://services.nvd.nist.gov/rest/json/cves/2.0", APIKey: "key"},
			KEV:  app.KEVConfig{FeedURL: "https://www.cisa.gov/feed.json"},
			EPSS: app.EPSSConfig{BaseURL: "https://api.first.org/data/v1/epss"},
		},
		Maintenance: app.MaintenanceConfig{Enabled: true, IntelSchedule: "@hourly"},
	}

	svc := NewAuditService(db, cfg)
	fixed := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	result := svc.Run(context.Background())
	require.Equal(t, fixed, result.CheckedAt)
	require.Len(t, result.Checks, 5)
	require.Equal(t, 5, result.Summary[string(StatusPass)])
}

func TestAuditServiceFlagsWeakConfiguration(t *testing.T) {
	cfg := &app.Config{
		Providers: app.ProvidersConfig{
			NVD:  app.NVDConfig{BaseURL: "http://nvd.local"},
			KEV:  app.KEVConfig{FeedURL: "https://kev.local"},
			EPSS: app.EPSSConfig{BaseURL: "https://epss.local"},
		},
		Fetch: app.FetchConfig{AllowInsecure: true},
	}

	result := NewAuditService(nil, cfg).Run(context.Background())

	require.Equal(t, StatusFail, findCheck(t, result, "upstream_tls_verification").Status)
	endpoints := findCheck(t, result, "provider_endpoints_https")
	require.Equal(t, StatusWarn, endpoints.Status)
	require.Equal(t, map[string]any{"providers": []string{"nvd"}}, endpoints.Details)
	require.Equal(t, StatusWarn, findCheck(t, result, "nvd_api_key").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "cache_maintenance").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "expired_record_backlog").Status)
}

func TestAuditServiceExpiredBacklog(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	past, err := cache.NewIntelStore(db, cache.WithClock(func() time.Time { return now.Add(-48 * time.Hour) }))
	require.NoError(t, err)
	for _, id := range []string{"CVE-2020-0001", "CVE-2020-0002"} {
		require.NoError(t, past.Store(context.Background(),
			intel.NewKey(intel.SourceVulnDB, intel.QueryIdentifier, id, nil), map[string]string{"id": id}, nil))
	}

	svc := NewAuditService(db, nil)
	svc.WithClock(func() time.Time { return now })
	svc.WithBacklogThreshold(1)

	check := findCheck(t, svc.Run(context.Background()), "expired_record_backlog")
	require.Equal(t, StatusWarn, check.Status)
	require.Equal(t, map[string]any{"count": int64(2)}, check.Details)
}

func TestAuditServiceWithoutConfig(t *testing.T) {
	result := NewAuditService(nil, nil).Run(context.Background())
	require.Equal(t, 5, result.Summary[string(StatusWarn)])
}
