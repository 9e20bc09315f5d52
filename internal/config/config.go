// Package config loads jarvis configuration.
//
// Values are layered: built-in defaults, then the TOML file
// (~/.jarvis/config.toml unless a path is given), then a .env file in the
// working directory, then JARVIS_* environment variables. The result is
// validated and handed to constructors explicitly; nothing below the CLI
// reads the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

var (
	// ErrMissingRequired is returned when a required value is empty.
	ErrMissingRequired = errors.New("missing required configuration")

	// ErrInvalidConfig is returned when a value is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// EnvPrefix prefixes every environment override, e.g. JARVIS_WORKER_CONCURRENCY.
const EnvPrefix = "JARVIS"

// Duration is a time.Duration that decodes from strings like "30s" in both
// TOML and the environment.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

// WorkerConfig controls task processing.
type WorkerConfig struct {
	PollInterval  Duration `toml:"poll_interval" split_words:"true"`
	Concurrency   int      `toml:"concurrency"`
	LockTimeout   Duration `toml:"lock_timeout" split_words:"true"`
	TaskTimeout   Duration `toml:"task_timeout" split_words:"true"`
	SweepInterval Duration `toml:"sweep_interval" split_words:"true"`
}

// RetryConfig is the task retry policy.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts" split_words:"true"`
	BaseDelay   Duration `toml:"base_delay" split_words:"true"`
	MaxDelay    Duration `toml:"max_delay" split_words:"true"`
}

// IndexerConfig controls chunking.
type IndexerConfig struct {
	ChunkSize int `toml:"chunk_size" split_words:"true"`
	Overlap   int `toml:"overlap"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string `toml:"provider"` // hashed, ollama or openai
	Model      string `toml:"model"`
	BaseURL    string `toml:"base_url" split_words:"true"`
	APIKey     string `toml:"api_key" split_words:"true"`
	Dimensions int    `toml:"dimensions"`
	BatchSize  int    `toml:"batch_size" split_words:"true"`
}

// ExtractionConfig selects the entity backend and downstream fact types.
type ExtractionConfig struct {
	Backend   string   `toml:"backend"` // rules or llm
	Ruleset   string   `toml:"ruleset"`
	FactTypes []string `toml:"fact_types" split_words:"true"`
	// RateLimit caps LLM backend requests per second; 0 disables it.
	RateLimit float64 `toml:"rate_limit" split_words:"true"`
}

// LLMConfig selects the LLM transport.
type LLMConfig struct {
	Provider  string   `toml:"provider"` // ollama, openai or anthropic
	Model     string   `toml:"model"`
	BaseURL   string   `toml:"base_url" split_words:"true"` // empty means the provider default
	APIKey    string   `toml:"api_key" split_words:"true"`
	MaxTokens int      `toml:"max_tokens" split_words:"true"`
	Timeout   Duration `toml:"timeout"`
}

// Neo4jConfig addresses the graph export target (Neo4j or Memgraph).
type Neo4jConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

// SourcesConfig lists local directories for ingestion.
type SourcesConfig struct {
	LocalDirs    []string `toml:"local_dirs" split_words:"true"`
	ScanInterval Duration `toml:"scan_interval" split_words:"true"`
	ScanEnabled  bool     `toml:"scan_enabled" split_words:"true"`
}

// Config is the full jarvis configuration.
type Config struct {
	Database   DatabaseConfig   `toml:"database" envconfig:"DATABASE"`
	Log        LogConfig        `toml:"log" envconfig:"LOG"`
	Worker     WorkerConfig     `toml:"worker" envconfig:"WORKER"`
	Retry      RetryConfig      `toml:"retry" envconfig:"RETRY"`
	Indexer    IndexerConfig    `toml:"indexer" envconfig:"INDEXER"`
	Embedding  EmbeddingConfig  `toml:"embedding" envconfig:"EMBEDDING"`
	Extraction ExtractionConfig `toml:"extraction" envconfig:"EXTRACTION"`
	LLM        LLMConfig        `toml:"llm" envconfig:"LLM"`
	Neo4j      Neo4jConfig      `toml:"neo4j" envconfig:"NEO4J"`
	Sources    SourcesConfig    `toml:"sources" envconfig:"SOURCES"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Worker: WorkerConfig{
			PollInterval:  Duration(2 * time.Second),
			Concurrency:   1,
			LockTimeout:   Duration(10 * time.Minute),
			TaskTimeout:   Duration(5 * time.Minute),
			SweepInterval: Duration(time.Minute),
		},
		Retry: RetryConfig{
			MaxAttempts: domain.DefaultRetryPolicy().MaxAttempts,
			BaseDelay:   Duration(domain.DefaultRetryPolicy().BaseDelay),
			MaxDelay:    Duration(domain.DefaultRetryPolicy().MaxDelay),
		},
		Indexer:   IndexerConfig{ChunkSize: 1000, Overlap: 0},
		Embedding: EmbeddingConfig{Provider: "hashed", Dimensions: 128, BatchSize: 32},
		Extraction: ExtractionConfig{
			Backend:   "rules",
			Ruleset:   "default",
			FactTypes: taskTypeNames(domain.FactTaskTypes()),
		},
		LLM: LLMConfig{
			Provider:  "ollama",
			Model:     "llama3.1",
			MaxTokens: 2048,
			Timeout:   Duration(2 * time.Minute),
		},
		Neo4j:   Neo4jConfig{URI: "bolt://localhost:7687", User: "neo4j"},
		Sources: SourcesConfig{ScanInterval: Duration(time.Hour)},
	}
}

// DefaultPath returns ~/.jarvis/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".jarvis", "config.toml"), nil
}

// Load builds the configuration. An empty path means DefaultPath, which may
// be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	// .env is optional; variables may already be set in the shell.
	_ = godotenv.Load(".env")

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("%w: worker.concurrency must be at least 1", ErrInvalidConfig)
	}
	if c.Worker.PollInterval <= 0 || c.Worker.LockTimeout <= 0 || c.Worker.TaskTimeout <= 0 {
		return fmt.Errorf("%w: worker intervals and timeouts must be positive", ErrInvalidConfig)
	}
	if c.Worker.TaskTimeout > c.Worker.LockTimeout {
		return fmt.Errorf("%w: worker.task_timeout must not exceed worker.lock_timeout", ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("%w: retry delays must satisfy 0 < base_delay <= max_delay", ErrInvalidConfig)
	}
	if c.Indexer.ChunkSize < 1 || c.Indexer.Overlap < 0 || c.Indexer.Overlap >= c.Indexer.ChunkSize {
		return fmt.Errorf("%w: indexer requires chunk_size > overlap >= 0", ErrInvalidConfig)
	}

	switch c.Embedding.Provider {
	case "hashed":
	case "ollama", "openai":
		if c.Embedding.Model == "" {
			return fmt.Errorf("%w: embedding.model", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: unknown embedding.provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return fmt.Errorf("%w: embedding.api_key", ErrMissingRequired)
	}

	switch c.Extraction.Backend {
	case "rules":
	case "llm":
		if err := c.validateLLM(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown extraction.backend %q", ErrInvalidConfig, c.Extraction.Backend)
	}
	if _, err := c.FactTaskTypes(); err != nil {
		return err
	}
	if c.Extraction.RateLimit < 0 {
		return fmt.Errorf("%w: extraction.rate_limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case "ollama":
	case "openai", "anthropic":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("%w: llm.api_key", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: unknown llm.provider %q", ErrInvalidConfig, c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("%w: llm.model", ErrMissingRequired)
	}
	return nil
}

// FactTaskTypes returns the configured fact builders as task types.
func (c *Config) FactTaskTypes() ([]domain.TaskType, error) {
	out := make([]domain.TaskType, 0, len(c.Extraction.FactTypes))
	for _, name := range c.Extraction.FactTypes {
		t := domain.TaskType(strings.TrimSpace(name))
		if t == "" {
			continue
		}
		valid := false
		for _, known := range domain.FactTaskTypes() {
			if t == known {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("%w: unknown fact type %q", ErrInvalidConfig, name)
		}
		out = append(out, t)
	}
	return out, nil
}

// RetryPolicy returns the retry section as a domain policy.
func (c *Config) RetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay.Std(),
		MaxDelay:    c.Retry.MaxDelay.Std(),
	}
}

// SchedulerConfig returns the maintenance job settings.
func (c *Config) SchedulerConfig() domain.SchedulerConfig {
	cfg := domain.DefaultSchedulerConfig()
	cfg.TaskConfigs[domain.TaskIDStaleSweep] = domain.TaskConfig{
		Enabled:  c.Worker.SweepInterval > 0,
		Interval: c.Worker.SweepInterval.Std(),
	}
	cfg.TaskConfigs[domain.TaskIDLocalScan] = domain.TaskConfig{
		Enabled:  c.Sources.ScanEnabled && len(c.Sources.LocalDirs) > 0,
		Interval: c.Sources.ScanInterval.Std(),
	}
	return cfg
}

// DatabasePath returns the configured database file, or "" for the store
// default.
func (c *Config) DatabasePath() string {
	return expandHome(c.Database.Path)
}

// LocalDirs returns the configured source directories with ~ expanded.
func (c *Config) LocalDirs() []string {
	out := make([]string, 0, len(c.Sources.LocalDirs))
	for _, d := range c.Sources.LocalDirs {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, expandHome(d))
		}
	}
	return out
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func taskTypeNames(types []domain.TaskType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
