package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("info"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestNewWritesJSONAndFollowsLevel(t *testing.T) {
	restore := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(restore) })

	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := New(Config{Level: "warn", OutputPaths: []string{path}})
	require.NoError(t, err)

	zap.S().Infow("hidden")
	zap.S().Warnw("shown", "filename", "a.pdf")

	logger.SetLevel("debug")
	assert.Equal(t, zapcore.DebugLevel, logger.Level())
	zap.S().Debugw("now shown")
	require.NoError(t, logger.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	var messages []string
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		messages = append(messages, entry["message"].(string))
	}
	assert.Equal(t, []string{"shown", "Log level changed", "now shown"}, messages)
}
