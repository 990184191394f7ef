package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/panics"
)

// CheckStatus encodes the outcome of a health check.
type CheckStatus string

const (
	StatusUp       CheckStatus = "up"
	StatusDown     CheckStatus = "down"
	StatusDegraded CheckStatus = "degraded"
)

// CheckResult captures a single dependency check outcome.
type CheckResult struct {
	Component string        `json:"component"`
	Status    CheckStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates check results for a liveness or readiness evaluation.
type HealthReport struct {
	Success bool          `json:"success"`
	Status  CheckStatus   `json:"status"`
	Checks  []CheckResult `json:"checks"`
}

// Check encapsulates a single dependency check.
type Check struct {
	Name string
	Run  func(ctx context.Context) CheckResult
}

// NewCheck constructs a health check with the provided name and function.
func NewCheck(name string, fn func(ctx context.Context) CheckResult) Check {
	if fn == nil {
		fn = func(context.Context) CheckResult {
			return CheckResult{Status: StatusDown, Details: "check not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

// HealthManager coordinates liveness and readiness checks. Checks in one evaluation run
// concurrently, so a slow upstream check does not delay the database check.
type HealthManager struct {
	mu        sync.RWMutex
	liveness  []Check
	readiness []Check
}

// NewHealthManager constructs an empty health manager.
func NewHealthManager() *HealthManager {
	return &HealthManager{}
}

// RegisterLiveness appends a liveness check.
func (m *HealthManager) RegisterLiveness(check Check) {
	if check.Name == "" {
		return
	}
	m.mu.Lock()
	m.liveness = append(m.liveness, check)
	m.mu.Unlock()
}

// RegisterReadiness appends a readiness check.
func (m *HealthManager) RegisterReadiness(check Check) {
	if check.Name == "" {
		return
	}
	m.mu.Lock()
	m.readiness = append(m.readiness, check)
	m.mu.Unlock()
}

// EvaluateLiveness executes all configured liveness checks.
func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.liveness...)
	m.mu.RUnlock()
	return evaluate(ctx, checks)
}

// EvaluateReadiness executes all configured readiness checks.
func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.readiness...)
	m.mu.RUnlock()
	return evaluate(ctx, checks)
}

func evaluate(ctx context.Context, checks []Check) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}
	results := iter.Map(checks, func(check *Check) CheckResult {
		return runCheck(ctx, *check)
	})
	return buildReport(results)
}

func buildReport(results []CheckResult) HealthReport {
	report := HealthReport{Success: true, Status: StatusUp, Checks: results}
	if report.Checks == nil {
		report.Checks = []CheckResult{}
	}
	for _, r := range results {
		report.Status = worse(report.Status, r.Status)
	}
	report.Success = report.Status == StatusUp
	return report
}

func runCheck(ctx context.Context, check Check) CheckResult {
	start := time.Now()
	var (
		result  CheckResult
		catcher panics.Catcher
	)
	catcher.Try(func() { result = check.Run(ctx) })
	if recovered := catcher.Recovered(); recovered != nil {
		result = CheckResult{Status: StatusDown, Details: fmt.Sprint(recovered.Value)}
	}

	if result.Status == "" {
		result.Status = StatusDown
	}
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	result.Component = check.Name
	return result
}

func worse(current, candidate CheckStatus) CheckStatus {
	switch {
	case current == StatusDown || candidate == StatusDown:
		return StatusDown
	case current == StatusDegraded || candidate == StatusDegraded:
		return StatusDegraded
	default:
		return StatusUp
	}
}

// WorstStatus returns the most severe of the supplied statuses.
func WorstStatus(statuses ...CheckStatus) CheckStatus {
	status := StatusUp
	for _, s := range statuses {
		status = worse(status, s)
	}
	return status
}

// MergeReports combines liveness and readiness results to a single payload.
func MergeReports(live, ready HealthReport) HealthReport {
	checks := append([]CheckResult(nil), live.Checks...)
	checks = append(checks, ready.Checks...)
	return buildReport(checks)
}

// ResultFromError converts an error into a CheckResult. Context expiry degrades rather
// than fails the component.
func ResultFromError(component string, err error, duration time.Duration) CheckResult {
	if duration < 0 {
		duration = 0
	}
	if err == nil {
		return CheckResult{Component: component, Status: StatusUp, Duration: duration}
	}

	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}
	return CheckResult{Component: component, Status: status, Details: err.Error(), Duration: duration}
}
