// Package intel holds the normalized vulnerability intelligence model shared by the
// connectors, the cache store and the aggregation services.
package intel

import (
	"regexp"
	"strings"
	"time"
)

// Source identifies which provider (or combination of providers) produced a record.
type Source string

const (
	SourceVulnDB            Source = "vuln-db"
	SourceExploitedRegistry Source = "exploited-registry"
	SourceProbabilityScore  Source = "probability-score"
	SourceComposite         Source = "composite"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceVulnDB, SourceExploitedRegistry, SourceProbabilityScore, SourceComposite:
		return true
	}
	return false
}

// QueryType distinguishes free-text searches from single identifier lookups.
type QueryType string

const (
	QueryKeyword    QueryType = "keyword"
	QueryIdentifier QueryType = "identifier"
)

// Valid reports whether q is one of the known query types.
func (q QueryType) Valid() bool {
	return q == QueryKeyword || q == QueryIdentifier
}

// Severity is the qualitative CVSS band.
type Severity string

const (
	SeverityUnknown  Severity = "UNKNOWN"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity maps provider severity strings onto the known bands.
func ParseSeverity(raw string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(raw))) {
	case SeverityLow:
		return SeverityLow
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityUnknown
	}
}

// NormalizedVulnerability is the provider-independent view of a single CVE.
type NormalizedVulnerability struct {
	Identifier     string    `json:"identifier"`
	Description    string    `json:"description"`
	Severity       Severity  `json:"severity"`
	NumericScore   float64   `json:"numeric_score"`
	PublishedAt    time.Time `json:"published_at"`
	LastModifiedAt time.Time `json:"last_modified_at"`
	References     []string  `json:"references"`
}

// VulnerabilityDetail extends the normalized view with data only returned by identifier fetches.
type VulnerabilityDetail struct {
	NormalizedVulnerability
	CVSSVector       string   `json:"cvss_vector,omitempty"`
	AffectedProducts []string `json:"affected_products"`
}

// ExploitationStatus reports whether a CVE is listed in the exploited-vulnerability registry.
type ExploitationStatus struct {
	IsExploited        bool   `json:"is_exploited"`
	DateAdded          string `json:"date_added,omitempty"`
	DueDate            string `json:"due_date,omitempty"`
	RequiredAction     string `json:"required_action,omitempty"`
	Vendor             string `json:"vendor,omitempty"`
	Product            string `json:"product,omitempty"`
	KnownRansomwareUse string `json:"known_ransomware_use,omitempty"`
	// Diagnostic is set when the registry could not be consulted.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// ProbabilityScore is the predicted likelihood of exploitation.
type ProbabilityScore struct {
	Score      float64 `json:"score"`
	Percentile float64 `json:"percentile"`
	AsOfDate   string  `json:"as_of_date,omitempty"`
}

// CompositeAssessment merges all three providers for one identifier.
type CompositeAssessment struct {
	Identifier         string               `json:"identifier"`
	Vulnerability      *VulnerabilityDetail `json:"vulnerability,omitempty"`
	VulnerabilityError string               `json:"vulnerability_error,omitempty"`
	Exploitation       ExploitationStatus   `json:"exploitation"`
	Probability        ProbabilityScore     `json:"probability"`
	Degraded           []Source             `json:"degraded,omitempty"`
	FetchedAt          time.Time            `json:"fetched_at"`
}

// IsDegraded reports whether any provider fell back to its default.
func (a CompositeAssessment) IsDegraded() bool {
	return len(a.Degraded) > 0
}

// CacheInfo annotates a result with its cache provenance.
type CacheInfo struct {
	Cached    bool      `json:"cached"`
	Analysis  *string   `json:"analysis,omitempty"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SearchResult is the keyword search response.
type SearchResult struct {
	Keyword string                    `json:"keyword"`
	Results []NormalizedVulnerability `json:"results"`
	CacheInfo
}

// DetailResult is the single identifier detail response.
type DetailResult struct {
	Vulnerability VulnerabilityDetail `json:"vulnerability"`
	CacheInfo
}

// AssessmentResult is the composite assessment response.
type AssessmentResult struct {
	Assessment CompositeAssessment `json:"assessment"`
	CacheInfo
}

var identifierPattern = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// CanonicalIdentifier trims and uppercases a CVE identifier, returning ErrInvalidIdentifier
// when the result is not structurally valid.
func CanonicalIdentifier(raw string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if !identifierPattern.MatchString(id) {
		return "", ErrInvalidIdentifier
	}
	return id, nil
}
