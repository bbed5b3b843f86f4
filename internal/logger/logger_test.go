package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zapcore.Level
	}{
		{name: "debug", level: "debug", want: zapcore.DebugLevel},
		{name: "大写", level: "WARN", want: zapcore.WarnLevel},
		{name: "无法识别", level: "verbose", want: zapcore.InfoLevel},
		{name: "空", level: "", want: zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.level))
		})
	}
}

func TestNewLogger_Files(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := NewLogger(LogConfig{Level: "info", Dir: dir, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	require.NoError(t, err)

	l.With(zap.String("component", "test")).Info("普通日志", zap.String("pool_id", "a"))
	l.Error("错误日志")
	_ = l.Sync()

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "普通日志")
	assert.Contains(t, string(data), `"component":"test"`)

	errData, err := os.ReadFile(filepath.Join(dir, ErrorLogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(errData), "错误日志")
	assert.NotContains(t, string(errData), "普通日志")
}

func TestNewLogger_Console(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.NotNil(t, l.Named("sub"))
}
