package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("json info", func(t *testing.T) {
		logger, err := NewLogger("info", "json")
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("console debug", func(t *testing.T) {
		logger, err := NewLogger("debug", "console")
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("empty defaults to info json", func(t *testing.T) {
		logger, err := NewLogger("", "")
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("error level suppresses warn", func(t *testing.T) {
		logger, err := NewLogger("error", "json")
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := NewLogger("loud", "json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log level")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := NewLogger("info", "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log format")
	})
}
