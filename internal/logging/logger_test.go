package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{" WARN ", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"chatty", zapcore.InfoLevel},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, parseLevel(tc.in))
		})
	}
}

func TestNew_DebugEnablesDebugLevel(t *testing.T) {
	logger := New(Config{Service: "chat", Level: "error", Debug: true})
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")

	logger := New(Config{Service: "auth", Level: "info", File: path})
	logger.Info("file sink ready")
	_ = logger.Sync() // stdout may not support fsync

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"file sink ready"`)
	assert.Contains(t, string(data), `"service":"auth"`)
}
