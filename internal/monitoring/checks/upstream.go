package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/cveintel/internal/monitoring"
)

const defaultUpstreamFailureThreshold = 5

// Upstreams reports degraded when any intelligence provider has failed threshold times in a
// row. Providers never make the service unready because aggregation tolerates their loss.
func Upstreams(threshold uint64) monitoring.Check {
	if threshold == 0 {
		threshold = defaultUpstreamFailureThreshold
	}

	return monitoring.NewCheck("upstreams", func(ctx context.Context) monitoring.CheckResult {
		start := time.Now()
		var failing []string
		for _, upstream := range monitoring.Snapshot().Upstreams {
			if upstream.ConsecutiveFailures >= threshold {
				failing = append(failing, fmt.Sprintf("%s: %d consecutive failures", upstream.Provider, upstream.ConsecutiveFailures))
			}
		}

		status := monitoring.StatusUp
		if len(failing) > 0 {
			status = monitoring.StatusDegraded
		}
		return monitoring.CheckResult{
			Status:   status,
			Details:  strings.Join(failing, "; "),
			Duration: time.Since(start),
		}
	})
}
