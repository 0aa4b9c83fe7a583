package logging

import (
	"testing"

	"github.com/safetrack/trustsync/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewService(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		service, err := NewService(config.LogConfig{Level: "info", Format: "json", OutputPath: "stdout"})

		require.NoError(t, err)
		assert.NotNil(t, service.Logger())
		assert.NotNil(t, service.Sugar())
	})

	t.Run("console format", func(t *testing.T) {
		service, err := NewService(config.LogConfig{Level: "debug", Format: "console", OutputPath: "stdout"})

		require.NoError(t, err)
		assert.NotNil(t, service.Logger())
	})
}

func TestService_NilSafety(t *testing.T) {
	var service *Service

	assert.Nil(t, service.Logger())
	assert.Nil(t, service.Sugar())
	assert.NoError(t, service.Sync())

	service.Info("should not panic")
	service.Error("should not panic")
	service.Infof("should not panic: %d", 1)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("info"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("unknown"))
}
