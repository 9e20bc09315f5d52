package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// isolate points HOME and the working directory at empty temp dirs so the
// developer's own config and .env never leak into a test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000, cfg.Indexer.ChunkSize)
	assert.Equal(t, 0, cfg.Indexer.Overlap)
	assert.Equal(t, "rules", cfg.Extraction.Backend)
	assert.Equal(t, domain.DefaultRetryPolicy(), cfg.RetryPolicy())

	types, err := cfg.FactTaskTypes()
	require.NoError(t, err)
	assert.Equal(t, domain.FactTaskTypes(), types)
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".jarvis", "config.toml"), `
[database]
path = "~/data/jarvis.db"

[worker]
concurrency = 4
poll_interval = "500ms"

[retry]
max_attempts = 3
base_delay = "1s"
max_delay = "10s"

[extraction]
fact_types = ["lab_results"]

[sources]
local_dirs = ["~/Documents", " "]
scan_enabled = true
scan_interval = "30m"
`)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.PollInterval.Std())
	// Untouched keys keep their defaults.
	assert.Equal(t, 10*time.Minute, cfg.Worker.LockTimeout.Std())
	assert.Equal(t, filepath.Join(home, "data", "jarvis.db"), cfg.DatabasePath())
	assert.Equal(t, []string{filepath.Join(home, "Documents")}, cfg.LocalDirs())

	assert.Equal(t, domain.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}, cfg.RetryPolicy())

	types, err := cfg.FactTaskTypes()
	require.NoError(t, err)
	assert.Equal(t, []domain.TaskType{domain.TaskLabResults}, types)

	sched := cfg.SchedulerConfig()
	assert.True(t, sched.GetTaskConfig(domain.TaskIDLocalScan).Enabled)
	assert.Equal(t, 30*time.Minute, sched.GetTaskConfig(domain.TaskIDLocalScan).Interval)
	assert.Equal(t, time.Minute, sched.GetTaskConfig(domain.TaskIDStaleSweep).Interval)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[worker]\nconcurrency = 2\n")

	t.Setenv("JARVIS_WORKER_CONCURRENCY", "8")
	t.Setenv("JARVIS_WORKER_TASK_TIMEOUT", "45s")
	t.Setenv("JARVIS_EXTRACTION_FACT_TYPES", "financial_records,medical_events")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 45*time.Second, cfg.Worker.TaskTimeout.Std())
	assert.Equal(t, []string{"financial_records", "medical_events"}, cfg.Extraction.FactTypes)
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	writeFile(t, ".env", "JARVIS_LOG_LEVEL=debug\n")
	t.Cleanup(func() { os.Unsetenv("JARVIS_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidTOML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[worker\nconcurrency = ")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }, ErrInvalidConfig},
		{"task timeout beyond lease", func(c *Config) { c.Worker.TaskTimeout = c.Worker.LockTimeout + 1 }, ErrInvalidConfig},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, ErrInvalidConfig},
		{"max below base", func(c *Config) { c.Retry.MaxDelay = c.Retry.BaseDelay - 1 }, ErrInvalidConfig},
		{"overlap too large", func(c *Config) { c.Indexer.Overlap = c.Indexer.ChunkSize }, ErrInvalidConfig},
		{"unknown embedding", func(c *Config) { c.Embedding.Provider = "word2vec" }, ErrInvalidConfig},
		{"ollama embedding without model", func(c *Config) { c.Embedding.Provider = "ollama" }, ErrMissingRequired},
		{"unknown backend", func(c *Config) { c.Extraction.Backend = "spacy" }, ErrInvalidConfig},
		{"unknown fact type", func(c *Config) { c.Extraction.FactTypes = []string{"tax_returns"} }, ErrInvalidConfig},
		{"llm backend on openai without key", func(c *Config) {
			c.Extraction.Backend = "llm"
			c.LLM.Provider = "openai"
		}, ErrMissingRequired},
		{"unknown llm provider", func(c *Config) {
			c.Extraction.Backend = "llm"
			c.LLM.Provider = "gemini"
		}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 90s ")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
