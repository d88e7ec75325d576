package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/flowprep/pkg/preprocess"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ',', cfg.Delimiter())
	assert.Equal(t, 120*time.Second, cfg.Capture.IdleTimeout)
	assert.Equal(t, preprocess.DefaultSettings(), cfg.Pipeline)
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "flowprep.yaml", `
log:
  level: debug
  format: json
store: models.db
csv:
  nan_values: ["", "-"]
capture:
  idle_timeout: 30s
pipeline:
  unknown_labels: bucket
  scale_label: false
  protocols: ["0", "6", "17"]
  labels:
    BENIGN: 0
    ATTACK: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "models.db", cfg.Store)
	assert.Equal(t, []string{"", "-"}, cfg.CSV.NaNValues)
	assert.Equal(t, ',', cfg.Delimiter())
	assert.Equal(t, 30*time.Second, cfg.Capture.IdleTimeout)
	assert.Equal(t, 100, cfg.Capture.BatchSize, "unset fields keep defaults")

	assert.Equal(t, preprocess.UnknownBucket, cfg.Pipeline.UnknownLabels)
	assert.False(t, cfg.Pipeline.ScaleLabel)
	assert.Equal(t, []string{"0", "6", "17"}, cfg.Pipeline.Protocols)
	assert.Equal(t, map[string]int{"BENIGN": 0, "ATTACK": 1}, cfg.Pipeline.Labels)
	assert.Equal(t, preprocess.DefaultDropColumns(), cfg.Pipeline.DropColumns)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, preprocess.DefaultLabels(), cfg.Pipeline.Labels)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown field", content: "logging:\n  level: debug\n"},
		{name: "bad level", content: "log:\n  level: loud\n"},
		{name: "bad policy", content: "pipeline:\n  unknown_labels: ignore\n"},
		{name: "drop label", content: "pipeline:\n  drop_columns: [Label]\n"},
		{name: "bad delimiter", content: "csv:\n  delimiter: ';;'\n"},
		{name: "bad batch", content: "capture:\n  batch_size: 0\n"},
		{name: "malformed", content: "log: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "flowprep.yaml", tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeFile(t, "flowprep.yaml", "log:\n  level: debug\nstore: file.db\n")

	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvStore, "env.db")
	t.Setenv(EnvMetricsFile, "flowprep.prom")
	t.Setenv(EnvIdleTimeout, "5s")
	t.Setenv(EnvBatchSize, "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "env.db", cfg.Store)
	assert.Equal(t, "flowprep.prom", cfg.MetricsFile)
	assert.Equal(t, 5*time.Second, cfg.Capture.IdleTimeout)
	assert.Equal(t, 7, cfg.Capture.BatchSize)
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv(EnvBatchSize, "many")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", EnvStore+"=dotenv.db\n")
	t.Setenv(EnvStore, "")
	require.NoError(t, os.Unsetenv(EnvStore))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"), path))
	assert.Equal(t, "dotenv.db", os.Getenv(EnvStore))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv.db", cfg.Store)
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfig, "env.yaml")
	assert.Equal(t, "flag.yaml", Path("flag.yaml"))
	assert.Equal(t, "env.yaml", Path(""))
}
