package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/cveintel/internal/intel"
)

func TestEPSSScorePicksMostRecent(t *testing.T) {
	var cve string
	server := serveBytes(t, []byte(`{
		"status": "OK",
		"total": 2,
		"data": [
			{"cve": "CVE-2021-44228", "epss": "0.943580000", "percentile": "0.999500000", "date": "2025-02-27"},
			{"cve": "CVE-2021-44228", "epss": "0.975660000", "percentile": "0.999990000", "date": "2025-03-01"},
			{"cve": "CVE-2021-44228", "epss": "0.950000000", "percentile": "0.999800000", "date": "2025-02-28"}
		]
	}`), func(r *http.Request) { cve = r.URL.Query().Get("cve") })

	score, err := NewEPSS(testFetcher(), EPSSConfig{BaseURL: server.URL}).Score(context.Background(), "cve-2021-44228")
	require.NoError(t, err)
	require.Equal(t, "CVE-2021-44228", cve)
	require.InDelta(t, 0.97566, score.Score, 1e-9)
	require.InDelta(t, 0.99999, score.Percentile, 1e-9)
	require.Equal(t, "2025-03-01", score.AsOfDate)
}

func TestEPSSScoreNoDataIsZero(t *testing.T) {
	server := serveBytes(t, []byte(`{"status":"OK","total":0,"data":[]}`), nil)

	score, err := NewEPSS(testFetcher(), EPSSConfig{BaseURL: server.URL}).Score(context.Background(), "CVE-2099-0001")
	require.NoError(t, err)
	require.Equal(t, intel.ProbabilityScore{}, score)
}

func TestEPSSScoreGarbageFieldsDegrade(t *testing.T) {
	server := serveBytes(t, []byte(`{"data":[{"cve":"CVE-2021-44228","epss":"n/a","percentile":"1.7","date":"2025-03-01"}]}`), nil)

	score, err := NewEPSS(testFetcher(), EPSSConfig{BaseURL: server.URL}).Score(context.Background(), "CVE-2021-44228")
	require.NoError(t, err)
	require.Zero(t, score.Score)
	require.Equal(t, 1.0, score.Percentile)
}

func TestEPSSScoreUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewEPSS(testFetcher(), EPSSConfig{BaseURL: server.URL}).Score(context.Background(), "CVE-2021-44228")
	require.True(t, intel.IsUpstream(err))
}
