package app

import (
	"strings"

	"github.com/charlesng35/cveintel/pkg/logger"
)

// ConfigureLogging initialises the global logger from the logging section, defaulting to
// info level with the JSON encoder.
func ConfigureLogging(cfg LoggingConfig) error {
	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	return logger.Configure(logger.Options{Level: level, Format: strings.TrimSpace(cfg.Format)})
}
