package monitoring

import (
	"strings"
	"time"
)

// RecordUpstreamRequest captures the outcome and latency of a provider call.
func RecordUpstreamRequest(provider, result string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	provider = normalizeLabel(provider)
	result = normalizeLabel(result)
	module.metrics.upstreamRequests.WithLabelValues(provider, result).Inc()
	observeDuration(module.metrics.upstreamLatency.WithLabelValues(provider), duration)
	module.stats.upstreamEntry(provider).record(result, duration)
}

// RecordCacheLookup increments the lookup counter for source with "hit" or "miss".
func RecordCacheLookup(source, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	source = normalizeLabel(source)
	result = normalizeLabel(result)
	module.metrics.cacheLookups.WithLabelValues(source, result).Inc()
	module.stats.recordCacheLookup(result)
}

// RecordCacheWrite increments the write counter for source.
func RecordCacheWrite(source, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.cacheWrites.WithLabelValues(normalizeLabel(source), normalizeLabel(result)).Inc()
	if normalizeLabel(result) != "success" {
		module.stats.cacheWriteFailures.Add(1)
	}
}

// RecordAssessment tracks a built composite assessment and the sources that degraded.
func RecordAssessment(degraded []string) {
	module := ensureModule()
	if module == nil {
		return
	}
	result := "complete"
	if len(degraded) > 0 {
		result = "degraded"
	}
	module.metrics.assessments.WithLabelValues(result).Inc()
	for _, source := range degraded {
		module.metrics.degradedBranches.WithLabelValues(normalizeLabel(source)).Inc()
	}
	module.stats.recordAssessment(len(degraded) > 0)
}

// RecordAnalysis tracks an analysis request outcome. Duration is only observed for
// freshly generated text.
func RecordAnalysis(result string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	result = normalizeLabel(result)
	module.metrics.analysisRequests.WithLabelValues(result).Inc()
	if result == "generated" {
		observeDuration(module.metrics.analysisLatency, duration)
	}
	module.stats.recordAnalysis(result)
}

// ObserveAPILatency captures the HTTP request latency for the supplied route.
func ObserveAPILatency(method, path, status string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "UNKNOWN"
	}
	path = sanitizePath(path)
	if path == "" {
		path = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	module.metrics.apiLatency.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordMaintenanceRun records the completion of a maintenance job.
func RecordMaintenanceRun(job, result, message string, removed int64, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	jobID := normalizeLabel(job)
	result = normalizeLabel(result)
	module.metrics.maintenanceRuns.WithLabelValues(jobID, result).Inc()
	observeDuration(module.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	if removed > 0 {
		module.metrics.maintenanceRemoved.WithLabelValues(jobID).Add(float64(removed))
	}
	if result == "success" {
		module.metrics.maintenanceLastRun.WithLabelValues(jobID).Set(float64(time.Now().Unix()))
	}
	stats := module.stats.maintenanceEntry(jobID)
	stats.record(result, strings.TrimSpace(message), removed, duration)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}

func sanitizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "/" {
		return "root"
	}
	path = strings.Trim(path, "/")
	return strings.ReplaceAll(path, " ", "_")
}
