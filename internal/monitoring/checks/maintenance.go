package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/cveintel/internal/monitoring"
)

// The janitor runs hourly by default, so three missed runs marks it stale.
const defaultMaintenanceMaxAge = 3 * time.Hour

// Maintenance verifies that the cache janitor has run successfully within maxAge.
func Maintenance(maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.CheckResult {
		start := time.Now()
		jobs := monitoring.Snapshot().Maintenance.Jobs
		if len(jobs) == 0 {
			return monitoring.CheckResult{
				Status:   monitoring.StatusUp,
				Details:  "no maintenance jobs registered",
				Duration: time.Since(start),
			}
		}

		status := monitoring.StatusUp
		var problems []string
		for _, job := range jobs {
			if job.ConsecutiveFailures > 0 {
				status = monitoring.WorstStatus(status, monitoring.StatusDown)
				problems = append(problems, job.Job+": consecutive failures")
			}
			if !job.LastRunAt.IsZero() && start.Sub(job.LastRunAt) > maxAge {
				status = monitoring.WorstStatus(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": stale run "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.CheckResult{
			Status:   status,
			Details:  strings.Join(problems, "; "),
			Duration: time.Since(start),
		}
	})
}
