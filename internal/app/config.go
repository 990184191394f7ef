package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the CVE intelligence service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// ProvidersConfig points the connectors at their upstream feeds.
type ProvidersConfig struct {
	NVD  NVDConfig  `mapstructure:"nvd"`
	KEV  KEVConfig  `mapstructure:"kev"`
	EPSS EPSSConfig `mapstructure:"epss"`
}

// NVDConfig configures the vulnerability database connector.
type NVDConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// KEVConfig configures the exploited-vulnerability registry connector.
type KEVConfig struct {
	FeedURL      string        `mapstructure:"feed_url"`
	FeedCacheTTL time.Duration `mapstructure:"feed_cache_ttl"`
}

// EPSSConfig configures the exploit prediction connector.
type EPSSConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// FetchConfig tunes the shared outbound HTTP client.
type FetchConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	AllowInsecure bool          `mapstructure:"allow_insecure"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// LLMConfig configures the optional analysis generator.
type LLMConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig schedules the expiry sweeps.
type MaintenanceConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	IntelSchedule string        `mapstructure:"intel_schedule"`
	FeedSchedule  string        `mapstructure:"feed_schedule"`
	JobTimeout    time.Duration `mapstructure:"job_timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints and tunes the readiness thresholds.
type HealthConfig struct {
	Enabled                  bool          `mapstructure:"enabled"`
	UpstreamFailureThreshold uint64        `mapstructure:"upstream_failure_threshold"`
	MaintenanceMaxAge        time.Duration `mapstructure:"maintenance_max_age"`
}

// TracingConfig controls the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	PrettyPrint bool   `mapstructure:"pretty_print"`
}

// LoggingConfig selects the log level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CVEINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/cveintel.sqlite")

	v.SetDefault("providers.nvd.base_url", "https://services.nvd.nist.gov/rest/json/cves/2.0")
	v.SetDefault("providers.nvd.api_key", "")
	v.SetDefault("providers.kev.feed_url", "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json")
	v.SetDefault("providers.kev.feed_cache_ttl", "1h")
	v.SetDefault("providers.epss.base_url", "https://api.first.org/data/v1/epss")

	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.allow_insecure", false)
	v.SetDefault("fetch.user_agent", "cveintel/1.0")

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.intel_schedule", "@hourly")
	v.SetDefault("maintenance.feed_schedule", "@hourly")
	v.SetDefault("maintenance.job_timeout", "5m")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
	v.SetDefault("monitoring.health_check.upstream_failure_threshold", 5)
	v.SetDefault("monitoring.health_check.maintenance_max_age", "3h")

	v.SetDefault("monitoring.tracing.enabled", false)
	v.SetDefault("monitoring.tracing.service_name", "cveintel")
	v.SetDefault("monitoring.tracing.pretty_print", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
