package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charlesng35/cveintel/internal/cache"
	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/internal/models"
)

const analysisSystemPrompt = "You are a vulnerability management analyst. Explain risk in plain English for " +
	"an engineering audience, prioritise remediation, and never invent facts that are not in the data provided."

// At most this many list entries are rendered into a summary prompt.
const maxPromptEntries = 20

// buildPrompt picks the risk-prioritization prompt when the payload carries exploitation
// data and the list-summary prompt otherwise.
func buildPrompt(record *models.IntelRecord) (string, error) {
	var fields map[string]json.RawMessage
	if json.Unmarshal(record.RawPayload, &fields) == nil {
		if _, ok := fields["exploitation"]; ok {
			var assessment intel.CompositeAssessment
			if err := cache.DecodePayload(record, &assessment); err != nil {
				return "", err
			}
			return riskPrompt(assessment), nil
		}
		var detail intel.VulnerabilityDetail
		if err := cache.DecodePayload(record, &detail); err != nil {
			return "", err
		}
		return summaryPrompt(record.QueryValue, []intel.NormalizedVulnerability{detail.NormalizedVulnerability}), nil
	}

	var list []intel.NormalizedVulnerability
	if err := cache.DecodePayload(record, &list); err != nil {
		return "", err
	}
	return summaryPrompt(record.QueryValue, list), nil
}

func riskPrompt(a intel.CompositeAssessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prioritise remediation for %s using the intelligence below.\n\n", a.Identifier)

	if v := a.Vulnerability; v != nil {
		fmt.Fprintf(&b, "Severity: %s (CVSS %.1f)\n", v.Severity, v.NumericScore)
		if v.CVSSVector != "" {
			fmt.Fprintf(&b, "Vector: %s\n", v.CVSSVector)
		}
		fmt.Fprintf(&b, "Description: %s\n", v.Description)
		if len(v.AffectedProducts) > 0 {
			fmt.Fprintf(&b, "Affected products: %s\n", strings.Join(v.AffectedProducts, ", "))
		}
	} else {
		fmt.Fprintf(&b, "Vulnerability details: unavailable (%s)\n", a.VulnerabilityError)
	}

	e := a.Exploitation
	if e.IsExploited {
		fmt.Fprintf(&b, "Known exploited: yes, listed %s, remediation due %s\n", e.DateAdded, e.DueDate)
		if e.RequiredAction != "" {
			fmt.Fprintf(&b, "Required action: %s\n", e.RequiredAction)
		}
		if e.KnownRansomwareUse != "" {
			fmt.Fprintf(&b, "Known ransomware use: %s\n", e.KnownRansomwareUse)
		}
	} else {
		b.WriteString("Known exploited: no\n")
	}

	fmt.Fprintf(&b, "Exploit probability (30 days): %.4f, percentile %.4f\n", a.Probability.Score, a.Probability.Percentile)
	if len(a.Degraded) > 0 {
		sources := make([]string, 0, len(a.Degraded))
		for _, s := range a.Degraded {
			sources = append(sources, string(s))
		}
		fmt.Fprintf(&b, "Note: data from %s was unavailable; treat the related fields as unknown.\n", strings.Join(sources, ", "))
	}

	b.WriteString("\nGive an overall urgency (immediate, high, moderate, low), the reasons, and concrete next steps.")
	return b.String()
}

func summaryPrompt(query string, vulns []intel.NormalizedVulnerability) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarise the %d vulnerabilities found for %q.\n\n", len(vulns), query)
	for i, v := range vulns {
		if i == maxPromptEntries {
			fmt.Fprintf(&b, "... and %d more\n", len(vulns)-maxPromptEntries)
			break
		}
		fmt.Fprintf(&b, "- %s [%s %.1f]: %s\n", v.Identifier, v.Severity, v.NumericScore, v.Description)
	}
	b.WriteString("\nHighlight the most severe entries and any common themes.")
	return b.String()
}
