package realtime

// Named event streams.
const (
	StreamAssessments = "intel.assessments"
	StreamAnalysis    = "intel.analysis"
	StreamMaintenance = "maintenance.sweeps"
)

// Event names.
const (
	EventAssessmentCompleted = "assessment.completed"
	EventAssessmentDegraded  = "assessment.degraded"
	EventAnalysisGenerated   = "analysis.generated"
	EventSweepCompleted      = "sweep.completed"
)

// Known reports whether stream is one the hub publishes on.
func Known(stream string) bool {
	switch normalizeStream(stream) {
	case StreamAssessments, StreamAnalysis, StreamMaintenance:
		return true
	}
	return false
}

// DefaultStreams is used when a subscriber names none.
func DefaultStreams() []string {
	return []string{StreamAssessments, StreamAnalysis, StreamMaintenance}
}
