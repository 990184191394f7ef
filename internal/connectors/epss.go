package connectors

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/charlesng35/cveintel/internal/intel"
)

// DefaultEPSSBaseURL is the FIRST EPSS API endpoint.
const DefaultEPSSBaseURL = "https://api.first.org/data/v1/epss"

// EPSSConfig configures the exploit probability connector.
type EPSSConfig struct {
	BaseURL string
}

// EPSS queries the FIRST Exploit Prediction Scoring System API.
type EPSS struct {
	fetcher Fetcher
	baseURL string
}

// NewEPSS constructs the probability connector.
func NewEPSS(fetcher Fetcher, cfg EPSSConfig) *EPSS {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultEPSSBaseURL
	}
	return &EPSS{fetcher: fetcher, baseURL: base}
}

type epssResponse struct {
	Status string `json:"status"`
	Total  int    `json:"total"`
	Data   []struct {
		CVE        string `json:"cve"`
		EPSS       string `json:"epss"`
		Percentile string `json:"percentile"`
		Date       string `json:"date"`
	} `json:"data"`
}

// Score returns the most recent score for identifier. A provider with no data yields a zero
// score and no error.
func (e *EPSS) Score(ctx context.Context, identifier string) (intel.ProbabilityScore, error) {
	id := strings.ToUpper(strings.TrimSpace(identifier))

	params := url.Values{}
	params.Set("cve", id)

	var payload epssResponse
	if err := e.fetcher.GetJSON(ctx, e.baseURL+"?"+params.Encode(), nil, &payload); err != nil {
		return intel.ProbabilityScore{}, fmt.Errorf("epss score %s: %w", id, err)
	}

	var (
		best  intel.ProbabilityScore
		found bool
	)
	for _, row := range payload.Data {
		if row.CVE != "" && !strings.EqualFold(row.CVE, id) {
			continue
		}
		// ISO dates compare lexically.
		if found && row.Date <= best.AsOfDate {
			continue
		}
		best = intel.ProbabilityScore{
			Score:      parseUnit(row.EPSS),
			Percentile: parseUnit(row.Percentile),
			AsOfDate:   row.Date,
		}
		found = true
	}
	return best, nil
}

// parseUnit parses a string encoded probability, clamping to [0, 1]. Garbage reads as 0.
func parseUnit(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
