package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/cveintel/internal/cache"
	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/pkg/logger"
)

const (
	// DefaultKEVFeedURL is the CISA known exploited vulnerabilities JSON feed.
	DefaultKEVFeedURL = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"

	kevFeedCacheKey = "feed:exploited-registry"
)

// KEVConfig configures the exploited-vulnerability registry connector.
type KEVConfig struct {
	FeedURL string
	// FeedCacheTTL keeps the downloaded catalog in FeedCache. Zero downloads on every lookup.
	FeedCacheTTL time.Duration
}

// KEV looks identifiers up in the CISA Known Exploited Vulnerabilities catalog. The provider
// has no per-identifier endpoint, so every lookup scans the full feed.
type KEV struct {
	fetcher Fetcher
	feedURL string
	store   cache.Store
	ttl     time.Duration
	log     *zap.Logger
}

// NewKEV constructs the registry connector. store may be nil.
func NewKEV(fetcher Fetcher, store cache.Store, cfg KEVConfig) *KEV {
	feedURL := strings.TrimSpace(cfg.FeedURL)
	if feedURL == "" {
		feedURL = DefaultKEVFeedURL
	}
	return &KEV{
		fetcher: fetcher,
		feedURL: feedURL,
		store:   store,
		ttl:     cfg.FeedCacheTTL,
		log:     logger.WithModule("connectors.kev"),
	}
}

type kevCatalog struct {
	CatalogVersion  string     `json:"catalogVersion"`
	DateReleased    string     `json:"dateReleased"`
	Count           int        `json:"count"`
	Vulnerabilities []kevEntry `json:"vulnerabilities"`
}

type kevEntry struct {
	CVEID                      string `json:"cveID"`
	VendorProject              string `json:"vendorProject"`
	Product                    string `json:"product"`
	VulnerabilityName          string `json:"vulnerabilityName"`
	DateAdded                  string `json:"dateAdded"`
	RequiredAction             string `json:"requiredAction"`
	DueDate                    string `json:"dueDate"`
	KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse"`
}

// Lookup reports whether identifier is listed. A feed failure is not an error: the result is
// {IsExploited:false} with Diagnostic describing what went wrong.
func (k *KEV) Lookup(ctx context.Context, identifier string) (intel.ExploitationStatus, error) {
	id := strings.TrimSpace(identifier)

	catalog, err := k.catalog(ctx)
	if err != nil {
		k.log.Warn("exploited registry unavailable", zap.String("cve", id), zap.Error(err))
		return intel.ExploitationStatus{
			IsExploited: false,
			Diagnostic:  fmt.Sprintf("exploited registry unavailable: %v", err),
		}, nil
	}

	for _, entry := range catalog.Vulnerabilities {
		if strings.EqualFold(strings.TrimSpace(entry.CVEID), id) {
			return intel.ExploitationStatus{
				IsExploited:        true,
				DateAdded:          entry.DateAdded,
				DueDate:            entry.DueDate,
				RequiredAction:     entry.RequiredAction,
				Vendor:             entry.VendorProject,
				Product:            entry.Product,
				KnownRansomwareUse: entry.KnownRansomwareCampaignUse,
			}, nil
		}
	}
	return intel.ExploitationStatus{IsExploited: false}, nil
}

func (k *KEV) catalog(ctx context.Context) (*kevCatalog, error) {
	if raw, ok := k.cachedFeed(ctx); ok {
		var catalog kevCatalog
		if err := json.Unmarshal(raw, &catalog); err == nil {
			return &catalog, nil
		}
		k.log.Warn("discarding undecodable cached feed")
	}

	resp, err := k.fetcher.Get(ctx, k.feedURL, nil)
	if err != nil {
		return nil, err
	}
	var catalog kevCatalog
	if err := json.Unmarshal(resp.Body, &catalog); err != nil {
		return nil, &intel.MalformedResponseError{URL: k.feedURL, Err: err}
	}

	if k.store != nil && k.ttl > 0 {
		if err := k.store.Set(ctx, kevFeedCacheKey, resp.Body, k.ttl); err != nil {
			k.log.Warn("failed to cache exploited registry feed", zap.Error(err))
		}
	}
	k.log.Debug("exploited registry feed downloaded",
		zap.String("catalog_version", catalog.CatalogVersion),
		zap.Int("entries", len(catalog.Vulnerabilities)),
	)
	return &catalog, nil
}

func (k *KEV) cachedFeed(ctx context.Context) ([]byte, bool) {
	if k.store == nil || k.ttl <= 0 {
		return nil, false
	}
	raw, ok, err := k.store.Get(ctx, kevFeedCacheKey)
	if err != nil {
		k.log.Warn("feed cache read failed", zap.Error(err))
		return nil, false
	}
	return raw, ok
}
