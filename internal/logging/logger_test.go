package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		raw  string
		want zapcore.Level
	}{
		{raw: "", want: zapcore.InfoLevel},
		{raw: " DEBUG ", want: zapcore.DebugLevel},
		{raw: "warning", want: zapcore.WarnLevel},
		{raw: "error", want: zapcore.ErrorLevel},
	}
	for _, testCase := range testCases {
		got, err := ParseLevel(testCase.raw)
		require.NoError(t, err, "parse %q", testCase.raw)
		assert.Equal(t, testCase.want, got, "parse %q", testCase.raw)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	logger, err := NewLogger("warn")
	require.NoError(t, err)
	defer func() { _ = logger.Sync() }()

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel), "info at warn level")
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel), "warn at warn level")
}
