package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	cacheHits          atomic.Uint64
	cacheMisses        atomic.Uint64
	cacheWriteFailures atomic.Uint64

	assessmentsTotal    atomic.Uint64
	assessmentsDegraded atomic.Uint64

	analysisGenerated atomic.Uint64
	analysisCached    atomic.Uint64
	analysisFailed    atomic.Uint64

	upstreams   sync.Map // string -> *upstreamStats
	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	return &statStore{}
}

func (s *statStore) summary() Summary {
	return Summary{
		GeneratedAt: time.Now(),
		Cache: CacheSummary{
			Hits:          s.cacheHits.Load(),
			Misses:        s.cacheMisses.Load(),
			WriteFailures: s.cacheWriteFailures.Load(),
		},
		Assessments: AssessmentSummary{
			Total:    s.assessmentsTotal.Load(),
			Degraded: s.assessmentsDegraded.Load(),
		},
		Analysis: AnalysisSummary{
			Generated: s.analysisGenerated.Load(),
			Cached:    s.analysisCached.Load(),
			Failed:    s.analysisFailed.Load(),
		},
		Upstreams: s.cloneUpstreams(),
		Maintenance: MaintenanceSummary{
			Jobs: s.cloneMaintenance(),
		},
	}
}

func (s *statStore) cloneUpstreams() []UpstreamSummary {
	summaries := []UpstreamSummary{}
	s.upstreams.Range(func(key, value any) bool {
		summaries = append(summaries, value.(*upstreamStats).snapshot(key.(string)))
		return true
	})
	return summaries
}

func (s *statStore) cloneMaintenance() []MaintenanceJobSummary {
	summaries := []MaintenanceJobSummary{}
	s.maintenance.Range(func(key, value any) bool {
		summaries = append(summaries, value.(*maintenanceStats).snapshot(key.(string)))
		return true
	})
	return summaries
}

func (s *statStore) recordCacheLookup(result string) {
	if result == "hit" {
		s.cacheHits.Add(1)
		return
	}
	s.cacheMisses.Add(1)
}

func (s *statStore) recordAssessment(degraded bool) {
	s.assessmentsTotal.Add(1)
	if degraded {
		s.assessmentsDegraded.Add(1)
	}
}

func (s *statStore) recordAnalysis(result string) {
	switch result {
	case "generated":
		s.analysisGenerated.Add(1)
	case "cached":
		s.analysisCached.Add(1)
	default:
		s.analysisFailed.Add(1)
	}
}

func (s *statStore) upstreamEntry(provider string) *upstreamStats {
	if value, ok := s.upstreams.Load(provider); ok {
		return value.(*upstreamStats)
	}
	actual, _ := s.upstreams.LoadOrStore(provider, &upstreamStats{})
	return actual.(*upstreamStats)
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	if value, ok := s.maintenance.Load(job); ok {
		return value.(*maintenanceStats)
	}
	actual, _ := s.maintenance.LoadOrStore(job, &maintenanceStats{})
	return actual.(*maintenanceStats)
}

type upstreamStats struct {
	success        atomic.Uint64
	failure        atomic.Uint64
	lastStatus     atomic.Value // string
	lastCompleted  atomic.Int64
	totalLatencyNs atomic.Uint64
	consecutive    atomic.Uint64 // consecutive failures
}

func (u *upstreamStats) record(result string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	if result == "success" {
		u.success.Add(1)
		u.consecutive.Store(0)
	} else {
		u.failure.Add(1)
		u.consecutive.Add(1)
	}
	u.lastStatus.Store(result)
	u.lastCompleted.Store(time.Now().UnixNano())
	u.totalLatencyNs.Add(uint64(duration))
}

func (u *upstreamStats) snapshot(provider string) UpstreamSummary {
	status, _ := u.lastStatus.Load().(string)
	success := u.success.Load()
	failure := u.failure.Load()

	var avg float64
	if total := success + failure; total > 0 {
		avg = float64(u.totalLatencyNs.Load()) / float64(total) / float64(time.Second)
	}

	return UpstreamSummary{
		Provider:              provider,
		Success:               success,
		Failure:               failure,
		ConsecutiveFailures:   u.consecutive.Load(),
		LastStatus:            status,
		LastCompletedAt:       time.Unix(0, u.lastCompleted.Load()),
		AverageLatencySeconds: avg,
	}
}

type maintenanceStats struct {
	lastStatus           atomic.Value // string
	lastError            atomic.Value // string
	lastRun              atomic.Int64 // unix nano
	lastDuration         atomic.Int64 // nanoseconds
	lastRemoved          atomic.Int64
	consecutiveFailures  atomic.Uint64
	totalRuns            atomic.Uint64
	lastSuccessfulRun    atomic.Int64
	consecutiveSuccesses atomic.Uint64
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	status, _ := m.lastStatus.Load().(string)
	errMsg, _ := m.lastError.Load().(string)

	return MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          status,
		LastRunAt:           time.Unix(0, m.lastRun.Load()),
		LastDuration:        time.Duration(m.lastDuration.Load()),
		LastRemoved:         m.lastRemoved.Load(),
		LastError:           errMsg,
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		ConsecutiveSuccess:  m.consecutiveSuccesses.Load(),
		LastSuccessAt:       time.Unix(0, m.lastSuccessfulRun.Load()),
		TotalRuns:           m.totalRuns.Load(),
	}
}

func (m *maintenanceStats) record(result, message string, removed int64, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	now := time.Now()
	m.lastStatus.Store(result)
	m.lastError.Store(message)
	m.lastRun.Store(now.UnixNano())
	m.lastDuration.Store(int64(duration))
	m.lastRemoved.Store(removed)
	m.totalRuns.Add(1)

	switch result {
	case "success":
		m.consecutiveFailures.Store(0)
		m.consecutiveSuccesses.Add(1)
		m.lastSuccessfulRun.Store(now.UnixNano())
	default:
		m.consecutiveFailures.Add(1)
		m.consecutiveSuccesses.Store(0)
	}
}
