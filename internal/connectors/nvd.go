package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/pkg/logger"
)

const (
	// DefaultNVDBaseURL is the NVD CVE API 2.0 endpoint.
	DefaultNVDBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	// DefaultSearchSize is the page size used when a search does not ask for one.
	DefaultSearchSize = 10
	// MaxSearchSize is the largest page NVD serves.
	MaxSearchSize     = 2000

	maxReferences      = 3
	defaultDescription = "No description"
)

// NVDConfig configures the vulnerability database connector.
type NVDConfig struct {
	BaseURL string
	// APIKey is sent as the apiKey header when set.
	APIKey string
}

// NVD queries the NVD CVE API 2.0.
type NVD struct {
	fetcher Fetcher
	baseURL string
	apiKey  string
	log     *zap.Logger
}

// NewNVD constructs the vulnerability database connector.
func NewNVD(fetcher Fetcher, cfg NVDConfig) *NVD {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultNVDBaseURL
	}
	return &NVD{
		fetcher: fetcher,
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		log:     logger.WithModule("connectors.nvd"),
	}
}

// Search returns up to limit vulnerabilities matching keyword. An empty provider result is an
// empty slice, not an error.
func (n *NVD) Search(ctx context.Context, keyword string, limit int) ([]intel.NormalizedVulnerability, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, intel.ErrEmptyKeyword
	}
	limit = ClampLimit(limit)

	params := url.Values{}
	params.Set("keywordSearch", keyword)
	params.Set("resultsPerPage", strconv.Itoa(limit))

	var payload nvdResponse
	if err := n.fetcher.GetJSON(ctx, n.baseURL+"?"+params.Encode(), n.headers(), &payload); err != nil {
		return nil, fmt.Errorf("nvd search %q: %w", keyword, err)
	}

	results := make([]intel.NormalizedVulnerability, 0, len(payload.Vulnerabilities))
	for _, item := range payload.Vulnerabilities {
		if item.CVE.ID == "" {
			continue
		}
		results = append(results, item.CVE.normalize())
		if len(results) == limit {
			break
		}
	}
	n.log.Debug("keyword search completed",
		zap.String("keyword", keyword),
		zap.Int("results", len(results)),
		zap.Int("total", payload.TotalResults),
	)
	return results, nil
}

// Detail fetches one vulnerability including its CVSS vector and affected products.
func (n *NVD) Detail(ctx context.Context, identifier string) (*intel.VulnerabilityDetail, error) {
	id, err := intel.CanonicalIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("cveId", id)

	var payload nvdResponse
	if err := n.fetcher.GetJSON(ctx, n.baseURL+"?"+params.Encode(), n.headers(), &payload); err != nil {
		return nil, fmt.Errorf("nvd detail %s: %w", id, err)
	}
	if len(payload.Vulnerabilities) == 0 {
		return nil, &intel.NotFoundError{Resource: "vulnerability", Key: id}
	}

	cve := payload.Vulnerabilities[0].CVE
	metric := cve.Metrics.preferred()
	return &intel.VulnerabilityDetail{
		NormalizedVulnerability: cve.normalize(),
		CVSSVector:              metric.vector,
		AffectedProducts:        cve.affectedProducts(),
	}, nil
}

func (n *NVD) headers() map[string]string {
	if n.apiKey == "" {
		return nil
	}
	return map[string]string{"apiKey": n.apiKey}
}

// ClampLimit applies the default page size and the provider maximum.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchSize
	case limit > MaxSearchSize:
		return MaxSearchSize
	default:
		return limit
	}
}

type nvdResponse struct {
	ResultsPerPage  int `json:"resultsPerPage"`
	StartIndex      int `json:"startIndex"`
	TotalResults    int `json:"totalResults"`
	Vulnerabilities []struct {
		CVE nvdCVE `json:"cve"`
	} `json:"vulnerabilities"`
}

type nvdCVE struct {
	ID             string             `json:"id"`
	Published      string             `json:"published"`
	LastModified   string             `json:"lastModified"`
	Descriptions   []nvdLangString    `json:"descriptions"`
	Metrics        nvdMetrics         `json:"metrics"`
	References     []nvdReference     `json:"references"`
	Configurations []nvdConfiguration `json:"configurations"`
}

type nvdLangString struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type nvdReference struct {
	URL string `json:"url"`
}

type nvdConfiguration struct {
	Nodes []struct {
		CPEMatch []struct {
			Criteria   string `json:"criteria"`
			Vulnerable bool   `json:"vulnerable"`
		} `json:"cpeMatch"`
	} `json:"nodes"`
}

// nvdMetrics keeps each CVSS version raw so one malformed version degrades to the next
// instead of failing the whole document.
type nvdMetrics map[string]json.RawMessage

type nvdV3Metric struct {
	CVSSData struct {
		BaseScore    float64 `json:"baseScore"`
		BaseSeverity string  `json:"baseSeverity"`
		VectorString string  `json:"vectorString"`
	} `json:"cvssData"`
}

type nvdV2Metric struct {
	CVSSData struct {
		BaseScore    float64 `json:"baseScore"`
		VectorString string  `json:"vectorString"`
	} `json:"cvssData"`
	BaseSeverity string `json:"baseSeverity"`
}

type cvssMetric struct {
	score    float64
	severity intel.Severity
	vector   string
	found    bool
}

func (m nvdMetrics) preferred() cvssMetric {
	for _, version := range []string{"cvssMetricV31", "cvssMetricV30"} {
		var metrics []nvdV3Metric
		if raw, ok := m[version]; ok && json.Unmarshal(raw, &metrics) == nil && len(metrics) > 0 {
			data := metrics[0].CVSSData
			return cvssMetric{
				score:    data.BaseScore,
				severity: intel.ParseSeverity(data.BaseSeverity),
				vector:   data.VectorString,
				found:    true,
			}
		}
	}
	var v2 []nvdV2Metric
	if raw, ok := m["cvssMetricV2"]; ok && json.Unmarshal(raw, &v2) == nil && len(v2) > 0 {
		return cvssMetric{
			score:    v2[0].CVSSData.BaseScore,
			severity: intel.ParseSeverity(v2[0].BaseSeverity),
			vector:   v2[0].CVSSData.VectorString,
			found:    true,
		}
	}
	return cvssMetric{severity: intel.SeverityUnknown}
}

func (c nvdCVE) normalize() intel.NormalizedVulnerability {
	metric := c.Metrics.preferred()
	score := metric.score
	if score < 0 || score > 10 {
		score = 0
	}
	return intel.NormalizedVulnerability{
		Identifier:     strings.ToUpper(strings.TrimSpace(c.ID)),
		Description:    c.description(),
		Severity:       metric.severity,
		NumericScore:   score,
		PublishedAt:    parseTimestamp(c.Published),
		LastModifiedAt: parseTimestamp(c.LastModified),
		References:     c.references(),
	}
}

func (c nvdCVE) description() string {
	var fallback string
	for _, d := range c.Descriptions {
		value := strings.TrimSpace(d.Value)
		if value == "" {
			continue
		}
		if strings.EqualFold(d.Lang, "en") {
			return value
		}
		if fallback == "" {
			fallback = value
		}
	}
	if fallback == "" {
		return defaultDescription
	}
	return fallback
}

func (c nvdCVE) references() []string {
	refs := make([]string, 0, maxReferences)
	for _, r := range c.References {
		if u := strings.TrimSpace(r.URL); u != "" {
			refs = append(refs, u)
		}
		if len(refs) == maxReferences {
			break
		}
	}
	return refs
}

// affectedProducts flattens cpe criteria into vendor:product pairs in first-seen order.
func (c nvdCVE) affectedProducts() []string {
	seen := make(map[string]struct{})
	products := []string{}
	for _, cfg := range c.Configurations {
		for _, node := range cfg.Nodes {
			for _, match := range node.CPEMatch {
				parts := strings.Split(match.Criteria, ":")
				// cpe:2.3:<part>:<vendor>:<product>:...
				if len(parts) < 5 || parts[3] == "" || parts[4] == "" {
					continue
				}
				product := parts[3] + ":" + parts[4]
				if _, ok := seen[product]; ok {
					continue
				}
				seen[product] = struct{}{}
				products = append(products, product)
			}
		}
	}
	return products
}
