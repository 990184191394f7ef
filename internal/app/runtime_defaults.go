package app

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ApplyRuntimeDefaults reconciles settings that depend on each other and reports every
// adjustment so callers can log them. Secrets are never included in the returned keys.
func ApplyRuntimeDefaults(cfg *Config) (map[string]string, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	adjusted := make(map[string]string)

	cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.APIKey)
	if cfg.LLM.Enabled && cfg.LLM.APIKey == "" {
		cfg.LLM.Enabled = false
		adjusted["llm.enabled"] = "disabled: llm.api_key is empty"
	}

	cfg.Providers.NVD.APIKey = strings.TrimSpace(cfg.Providers.NVD.APIKey)

	if cfg.Providers.KEV.FeedCacheTTL < 0 {
		cfg.Providers.KEV.FeedCacheTTL = 0
		adjusted["providers.kev.feed_cache_ttl"] = "negative ttl reset to 0 (feed cache disabled)"
	}

	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
		adjusted["monitoring.prometheus.endpoint"] = endpoint
	}
	cfg.Monitoring.Prometheus.Endpoint = endpoint

	if cfg.Maintenance.Enabled {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		for key, spec := range map[string]string{
			"maintenance.intel_schedule": cfg.Maintenance.IntelSchedule,
			"maintenance.feed_schedule":  cfg.Maintenance.FeedSchedule,
		} {
			if strings.TrimSpace(spec) == "" {
				continue
			}
			if _, err := parser.Parse(spec); err != nil {
				return nil, fmt.Errorf("%s: invalid schedule %q: %w", key, spec, err)
			}
		}
	}

	return adjusted, nil
}
