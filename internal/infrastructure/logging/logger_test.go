package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/tracechain/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		enabled zapcore.Level
		wantErr bool
	}{
		{"production info", Config{Level: "info", OutputPaths: []string{"stdout"}}, zapcore.InfoLevel, false},
		{"development debug", Config{Level: "debug", Development: true, OutputPaths: []string{"stdout"}}, zapcore.DebugLevel, false},
		{"warn", Config{Level: "warn", OutputPaths: []string{"stdout"}}, zapcore.WarnLevel, false},
		{"unknown level", Config{Level: "chatty", OutputPaths: []string{"stdout"}}, zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.enabled-1))
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.LogConfig{Level: "debug", Development: true})

	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.Development)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestForService(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := ForService(zap.New(core), config.ServiceConfig{Name: "service-a", Version: "1.0.0", Environment: "test"})

	logger.Info("ready")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "service-a", fields["service"])
	assert.Equal(t, "1.0.0", fields["version"])
	assert.Equal(t, "test", fields["env"])
}

func TestEncoding(t *testing.T) {
	assert.Equal(t, "console", encodingFormat(true))
	assert.Equal(t, "json", encodingFormat(false))
	assert.Equal(t, "message", encoderConfig(false).MessageKey)
	assert.Equal(t, "M", encoderConfig(true).MessageKey)
}
