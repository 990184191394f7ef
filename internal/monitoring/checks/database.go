package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/cveintel/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database returns a readiness check that pings the cache database and confirms the
// intelligence table has been migrated.
func Database(db *gorm.DB, table string, timeout time.Duration) monitoring.Check {
	if timeout <= 0 {
		timeout = defaultDatabaseTimeout
	}

	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.CheckResult {
		start := time.Now()
		if db == nil {
			return monitoring.CheckResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := sqlDB.PingContext(checkCtx); err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		if table != "" && !db.WithContext(checkCtx).Migrator().HasTable(table) {
			return monitoring.CheckResult{
				Status:   monitoring.StatusDegraded,
				Details:  "table " + table + " missing",
				Duration: time.Since(start),
			}
		}

		return monitoring.CheckResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}
