package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigureLogging(t *testing.T) {
	require.NoError(t, ConfigureLogging(LoggingConfig{Level: "debug", Format: "console"}))
	require.NoError(t, ConfigureLogging(LoggingConfig{}))
	require.NoError(t, ConfigureLogging(LoggingConfig{Level: "chatty"}), "unknown levels fall back to info")
}
