package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/cveintel/internal/api"
	"github.com/charlesng35/cveintel/internal/app"
	"github.com/charlesng35/cveintel/internal/app/maintenance"
	"github.com/charlesng35/cveintel/internal/cache"
	"github.com/charlesng35/cveintel/internal/connectors"
	sharedtestutil "github.com/charlesng35/cveintel/internal/database/testutil"
	"github.com/charlesng35/cveintel/internal/fetch"
	"github.com/charlesng35/cveintel/internal/monitoring"
	"github.com/charlesng35/cveintel/internal/realtime"
	"github.com/charlesng35/cveintel/internal/security"
	"github.com/charlesng35/cveintel/internal/services"
	"github.com/charlesng35/cveintel/pkg/response"
)

const nvdFixture = `{
  "resultsPerPage": 1,
  "totalResults": 1,
  "vulnerabilities": [{
    "cve": {
      "id": "CVE-2021-44228",
      "published": "2021-12-10T10:15:09.143",
      "lastModified": "2024-07-24T17:08:24.167",
      "descriptions": [{"lang": "en", "value": "Apache Log4j2 JNDI features do not protect against attacker controlled LDAP endpoints."}],
      "metrics": {"cvssMetricV31": [{"cvssData": {"vectorString": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H", "baseScore": 10.0, "baseSeverity": "CRITICAL"}}]},
      "references": [{"url": "https://logging.apache.org/log4j/2.x/security.html"}],
      "configurations": [{"nodes": [{"cpeMatch": [{"vulnerable": true, "criteria": "cpe:2.3:a:apache:log4j:2.0:*:*:*:*:*:*:*"}]}]}]
    }
  }]
}`

const kevFixture = `{
  "catalogVersion": "2025.03.01",
  "count": 1,
  "vulnerabilities": [{
    "cveID": "CVE-2021-44228",
    "vendorProject": "Apache",
    "product": "Log4j2",
    "dateAdded": "2021-12-10",
    "requiredAction": "Apply updates per vendor instructions.",
    "dueDate": "2021-12-24",
    "knownRansomwareCampaignUse": "Known"
  }]
}`

const epssFixture = `{"status": "OK", "total": 1, "data": [{"cve": "CVE-2021-44228", "epss": "0.975660000", "percentile": "0.999990000", "date": "2025-03-01"}]}`

// Upstream serves canned provider responses and counts calls per provider.
type Upstream struct {
	Server *httptest.Server
	NVD    atomic.Int32
	KEV    atomic.Int32
	EPSS   atomic.Int32
	// FailKEV makes the registry feed answer 503.
	FailKEV atomic.Bool
}

func newUpstream(t *testing.T) *Upstream {
	t.Helper()

	up := &Upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/nvd", func(w http.ResponseWriter, r *http.Request) {
		up.NVD.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if id := r.URL.Query().Get("cveId"); id != "" && !strings.EqualFold(id, "CVE-2021-44228") {
			_, _ = w.Write([]byte(`{"totalResults": 0, "vulnerabilities": []}`))
			return
		}
		_, _ = w.Write([]byte(nvdFixture))
	})
	mux.HandleFunc("/kev", func(w http.ResponseWriter, r *http.Request) {
		up.KEV.Add(1)
		if up.FailKEV.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(kevFixture))
	})
	mux.HandleFunc("/epss", func(w http.ResponseWriter, r *http.Request) {
		up.EPSS.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(epssFixture))
	})

	up.Server = httptest.NewServer(mux)
	t.Cleanup(up.Server.Close)
	return up
}

// Env encapsulates a fully-wired API instance backed by an in-memory database and canned
// upstream providers.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Store    *cache.IntelStore
	Module   *monitoring.Module
	Upstream *Upstream
	Config   *app.Config
	Events   *realtime.Hub
}

// NewEnv provisions a fresh API test environment.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	up := newUpstream(t)

	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)

	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	store, err := cache.NewIntelStore(db)
	require.NoError(t, err)
	feeds := cache.NewDatabaseStore(db)

	client := fetch.New(fetch.Config{AllowInsecure: true, UserAgent: "cveintel-test"})
	nvd := connectors.NewNVD(client, connectors.NVDConfig{BaseURL: up.Server.URL + "/nvd"})
	kev := connectors.NewKEV(client, feeds, connectors.KEVConfig{FeedURL: up.Server.URL + "/kev"})
	epss := connectors.NewEPSS(client, connectors.EPSSConfig{BaseURL: up.Server.URL + "/epss"})

	intelSvc, err := services.NewIntelService(store, nvd, kev, epss)
	require.NoError(t, err)
	hub := realtime.NewHub()
	intelSvc.SetEventHub(hub)

	router, err := api.NewRouter(api.Dependencies{
		Config:      cfg,
		Intel:       intelSvc,
		Maintenance: maintenance.NewCleaner(store, feeds, maintenance.WithEventHub(hub)),
		Monitoring:  mod,
		Events:      hub,
		Audit:       security.NewAuditService(db, cfg),
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		Store:    store,
		Module:   mod,
		Upstream: up,
		Config:   cfg,
		Events:   hub,
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and the
// tenant header when tenant is non-empty.
func (e *Env) Request(method, path string, body any, tenant string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.T, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
