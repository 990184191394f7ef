// Package security evaluates the deployment posture of the intelligence service: upstream
// credentials, TLS verification and cache hygiene.
package security

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/cveintel/internal/app"
	"github.com/charlesng35/cveintel/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// DefaultBacklogThreshold is the expired row count above which the audit warns that sweeps
// are not keeping up.
const DefaultBacklogThreshold = 10000

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// AuditService evaluates configuration and cache state.
type AuditService struct {
	db               *gorm.DB
	cfg              *app.Config
	now              func() time.Time
	backlogThreshold int64
}

// NewAuditService constructs the audit service. Missing inputs degrade the affected checks
// to warnings.
func NewAuditService(db *gorm.DB, cfg *app.Config) *AuditService {
	return &AuditService{
		db:               db,
		cfg:              cfg,
		now:              time.Now,
		backlogThreshold: DefaultBacklogThreshold,
	}
}

// WithClock overrides the clock used in results and expiry comparisons.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithBacklogThreshold overrides DefaultBacklogThreshold.
func (s *AuditService) WithBacklogThreshold(n int64) {
	if n > 0 {
		s.backlogThreshold = n
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkTLSVerification(),
		s.checkProviderEndpoints(),
		s.checkNVDAPIKey(),
		s.checkMaintenance(),
		s.checkExpiredBacklog(ctx),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func configMissing(id string) Check {
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Configuration not loaded; unable to evaluate.",
		Remediation: "Load configuration before running the security audit.",
	}
}

func (s *AuditService) checkTLSVerification() Check {
	const id = "upstream_tls_verification"
	if s.cfg == nil {
		return configMissing(id)
	}
	if s.cfg.Fetch.AllowInsecure {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Certificate verification is disabled for upstream providers.",
			Remediation: "Set CVEINTEL_FETCH_ALLOW_INSECURE=false outside of local testing.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Upstream certificates are verified."}
}

func (s *AuditService) checkProviderEndpoints() Check {
	const id = "provider_endpoints_https"
	if s.cfg == nil {
		return configMissing(id)
	}

	endpoints := map[string]string{
		"nvd":  s.cfg.Providers.NVD.BaseURL,
		"kev":  s.cfg.Providers.KEV.FeedURL,
		"epss": s.cfg.Providers.EPSS.BaseURL,
	}
	var plain []string
	for name, raw := range endpoints {
		parsed, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || !strings.EqualFold(parsed.Scheme, "https") {
			plain = append(plain, name)
		}
	}
	if len(plain) > 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("%d provider endpoint(s) do not use HTTPS.", len(plain)),
			Remediation: "Point every provider at its HTTPS endpoint.",
			Details:     map[string]any{"providers": plain},
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "All provider endpoints use HTTPS."}
}

func (s *AuditService) checkNVDAPIKey() Check {
	const id = "nvd_api_key"
	if s.cfg == nil {
		return configMissing(id)
	}
	if strings.TrimSpace(s.cfg.Providers.NVD.APIKey) == "" {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "No NVD API key configured; anonymous requests are heavily rate limited.",
			Remediation: "Request an API key from NVD and set CVEINTEL_PROVIDERS_NVD_API_KEY.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "NVD API key configured."}
}

func (s *AuditService) checkMaintenance() Check {
	const id = "cache_maintenance"
	if s.cfg == nil {
		return configMissing(id)
	}
	if !s.cfg.Maintenance.Enabled {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Scheduled expiry sweeps are disabled; expired rows accumulate until swept manually.",
			Remediation: "Set CVEINTEL_MAINTENANCE_ENABLED=true or sweep via POST /api/intel/maintenance/sweep.",
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "Scheduled expiry sweeps are enabled.",
		Details: map[string]any{"schedule": s.cfg.Maintenance.IntelSchedule},
	}
}

func (s *AuditService) checkExpiredBacklog(ctx context.Context) Check {
	const id = "expired_record_backlog"
	if s.db == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Database unavailable; unable to count expired records.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.IntelRecord{}).
		Where("expires_at <= ?", s.now().UTC()).
		Count(&count).Error; err != nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not count expired records: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count > s.backlogThreshold {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("%d expired records are waiting to be swept.", count),
			Remediation: "Shorten the sweep schedule or trigger a manual sweep.",
			Details:     map[string]any{"count": count},
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "Expired record backlog is within limits.",
		Details: map[string]any{"count": count},
	}
}
