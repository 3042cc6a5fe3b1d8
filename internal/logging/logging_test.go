package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tables := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"fatal": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}

	for in, want := range tables {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestFanout(t *testing.T) {
	t.Parallel()

	var console, file bytes.Buffer
	logger := New(slog.LevelWarn, &console, &file)

	logger.Info("hidden")
	logger.Warn("skipping file outside archive", "path", "Stage/01-01.arc", "size", 100)

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "skipping file outside archive")

	var record map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "Stage/01-01.arc", record["path"])
	assert.EqualValues(t, 100, record["size"])
}

func TestSetupLogFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	fs := afero.NewMemMapFs()
	closer, err := Setup("debug", "/var/log/nebfs/nebfs.log", fs)
	require.NoError(t, err)

	slog.Debug("cluster decrypted", "cluster", 3)
	require.NoError(t, closer())

	b, err := afero.ReadFile(fs, "/var/log/nebfs/nebfs.log")
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"cluster decrypted"`)
	assert.Contains(t, string(b), `"cluster":3`)
}
