package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/cveintel/internal/app/maintenance"
	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/internal/security"
)

func writeConfig(t *testing.T, upstream string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`database:
  driver: sqlite
  path: %s
providers:
  nvd:
    base_url: %s/nvd
  kev:
    feed_url: %s/kev
  epss:
    base_url: %s/epss
maintenance:
  enabled: false
logging:
  level: error
`, filepath.Join(dir, "intel.sqlite"), upstream, upstream, upstream)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o600))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, version+"\n", out)
}

func TestSweepCommand(t *testing.T) {
	dir := writeConfig(t, "https://example.invalid")

	out, err := execute(t, "--config", dir, "sweep")
	require.NoError(t, err)

	var stats maintenance.SweepStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Zero(t, stats.IntelRecords)
}

func TestAuditCommand(t *testing.T) {
	dir := writeConfig(t, "https://example.invalid")

	out, err := execute(t, "--config", filepath.Join(dir, "config.yaml"), "audit")
	require.NoError(t, err)

	var result security.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Checks, 5)
	require.Zero(t, result.Summary[string(security.StatusFail)])
}

func TestAssessCommandDegradesWhenProvidersFail(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(upstream.Close)
	dir := writeConfig(t, upstream.URL)

	out, err := execute(t, "--config", dir, "assess", "cve-2021-44228", "--tenant", "acme")
	require.NoError(t, err)

	var result intel.AssessmentResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, "CVE-2021-44228", result.Assessment.Identifier)
	require.Nil(t, result.Assessment.Vulnerability)
	require.NotEmpty(t, result.Assessment.VulnerabilityError)
	require.False(t, result.Assessment.Exploitation.IsExploited)
	require.Len(t, result.Assessment.Degraded, 3)
	require.False(t, result.Cached)
}

func TestAssessCommandRejectsInvalidIdentifier(t *testing.T) {
	dir := writeConfig(t, "https://example.invalid")

	_, err := execute(t, "--config", dir, "assess", "log4j")
	require.ErrorIs(t, err, intel.ErrInvalidIdentifier)
}

func TestMissingConfigPath(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing"), "sweep")
	require.Error(t, err)
}
