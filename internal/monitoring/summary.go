package monitoring

import "time"

// Summary surfaces aggregated monitoring data for the operations endpoint.
type Summary struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Cache       CacheSummary       `json:"cache"`
	Assessments AssessmentSummary  `json:"assessments"`
	Analysis    AnalysisSummary    `json:"analysis"`
	Upstreams   []UpstreamSummary  `json:"upstreams"`
	Maintenance MaintenanceSummary `json:"maintenance"`
}

type CacheSummary struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	WriteFailures uint64 `json:"write_failures"`
}

type AssessmentSummary struct {
	Total    uint64 `json:"total"`
	Degraded uint64 `json:"degraded"`
}

type AnalysisSummary struct {
	Generated uint64 `json:"generated"`
	Cached    uint64 `json:"cached"`
	Failed    uint64 `json:"failed"`
}

type UpstreamSummary struct {
	Provider              string    `json:"provider"`
	Success               uint64    `json:"success"`
	Failure               uint64    `json:"failure"`
	ConsecutiveFailures   uint64    `json:"consecutive_failures"`
	LastStatus            string    `json:"last_status"`
	LastCompletedAt       time.Time `json:"last_completed_at"`
	AverageLatencySeconds float64   `json:"average_latency_seconds"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastRemoved         int64         `json:"last_removed"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	ConsecutiveSuccess  uint64        `json:"consecutive_success"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns a point-in-time summary from the current module when configured.
func Snapshot() Summary {
	if module := ensureModule(); module != nil && module.stats != nil {
		return module.stats.summary()
	}
	return Summary{GeneratedAt: time.Now()}
}
