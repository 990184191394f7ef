package intel

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalIdentifier(t *testing.T) {
	id, err := CanonicalIdentifier("  cve-2021-44228 ")
	require.NoError(t, err)
	require.Equal(t, "CVE-2021-44228", id)

	id, err = CanonicalIdentifier("CVE-2023-1234567")
	require.NoError(t, err)
	require.Equal(t, "CVE-2023-1234567", id)

	for _, raw := range []string{"", "CVE-21-1", "log4j", "CVE-2021-123", "CVE-2021-44228; DROP"} {
		_, err := CanonicalIdentifier(raw)
		require.ErrorIs(t, err, ErrInvalidIdentifier, raw)
	}
}

func TestParseSeverity(t *testing.T) {
	require.Equal(t, SeverityCritical, ParseSeverity("critical"))
	require.Equal(t, SeverityHigh, ParseSeverity(" HIGH "))
	require.Equal(t, SeverityUnknown, ParseSeverity(""))
	require.Equal(t, SeverityUnknown, ParseSeverity("NONE"))
}

func TestNewKeyNormalization(t *testing.T) {
	blank := "  "
	key := NewKey(SourceComposite, QueryIdentifier, " cve-2021-44228", &blank)
	require.Equal(t, "CVE-2021-44228", key.QueryValue)
	require.True(t, key.IsGlobal())
	require.Equal(t, GlobalTenant, key.TenantKey())

	tenant := " acme "
	key = NewKey(SourceVulnDB, QueryKeyword, " Log4j ", &tenant)
	require.Equal(t, "Log4j", key.QueryValue)
	require.Equal(t, "acme", key.TenantKey())
	require.False(t, key.IsGlobal())
	require.True(t, key.Global().IsGlobal())
	require.Equal(t, "vuln-db/keyword/Log4j@acme", key.String())
}

func TestValidateTenant(t *testing.T) {
	valid := []*string{nil, ptr(""), ptr("  "), ptr("acme"), ptr(strings.Repeat("a", MaxTenantLength))}
	for _, tenant := range valid {
		require.NoError(t, ValidateTenant(tenant))
	}

	invalid := []*string{ptr(GlobalTenant), ptr(" __global__ "), ptr("__Global__"), ptr(strings.Repeat("a", MaxTenantLength+1))}
	for _, tenant := range invalid {
		require.ErrorIs(t, ValidateTenant(tenant), ErrInvalidTenant, *tenant)
	}

	reserved := GlobalTenant
	require.ErrorIs(t, NewKey(SourceComposite, QueryIdentifier, "CVE-2021-44228", &reserved).Validate(), ErrInvalidTenant)
	require.NoError(t, NewKey(SourceComposite, QueryIdentifier, "CVE-2021-44228", nil).Validate())
}

func ptr(s string) *string { return &s }

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("search: %w", &UpstreamHTTPError{URL: "https://x", StatusCode: 503})
	require.True(t, IsUpstream(wrapped))
	require.False(t, IsNotFound(wrapped))

	nf := fmt.Errorf("detail: %w", &NotFoundError{Resource: "vulnerability", Key: "CVE-2000-0001"})
	require.True(t, IsNotFound(nf))

	inner := errors.New("disk full")
	pe := &PersistenceError{Op: "store", Err: inner}
	require.ErrorIs(t, pe, inner)
	require.Contains(t, pe.Error(), "store")
}
