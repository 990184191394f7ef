// Package connectors adapts the vulnerability database, the exploited-vulnerability registry
// and the exploit probability service onto the normalized intel model.
package connectors

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/cveintel/internal/fetch"
)

// Fetcher is the subset of the fetch client the connectors depend on.
type Fetcher interface {
	Get(ctx context.Context, url string, headers map[string]string) (*fetch.Response, error)
	GetJSON(ctx context.Context, url string, headers map[string]string, dest any) error
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts the provider formats seen in practice. Unparseable values yield the
// zero time.
func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
