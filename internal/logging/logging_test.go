package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/daimatz/gojvm-reload/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.LoggingConfig
		level zapcore.Level
	}{
		{"console debug", config.LoggingConfig{Level: "debug", Format: "console"}, zapcore.DebugLevel},
		{"json warn", config.LoggingConfig{Level: "warn", Format: "json"}, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.level))
			assert.False(t, log.Core().Enabled(tt.level-1))
		})
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud", Format: "json"})
	assert.ErrorContains(t, err, "invalid log level")

	_, err = New(config.LoggingConfig{Level: "info", Format: "xml"})
	assert.ErrorContains(t, err, "invalid log format")
}
