// Package config provides configuration management for enhancedmem.
// Settings are resolved in three layers: built-in defaults, an optional YAML
// file, and environment variables with the ENHANCEDMEM_ prefix. Later layers
// win. Every setting has a sensible default, so an empty environment yields a
// working configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for enhancedmem.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Memory   MemoryConfig   `yaml:"memory"`
	Boundary BoundaryConfig `yaml:"boundary"`
	Storage  StorageConfig  `yaml:"storage"`
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`            // openai, anthropic, ollama (default: openai)
	Model             string        `yaml:"model"`               // Model identifier passed on every call
	APIKey            string        `yaml:"api_key"`             // Provider API key (unused by ollama)
	BaseURL           string        `yaml:"base_url"`            // Override for OpenAI-compatible or Ollama endpoints
	Timeout           time.Duration `yaml:"timeout"`             // Per-request timeout (default: 60s)
	RequestsPerSecond float64       `yaml:"requests_per_second"` // Client-side rate limit, 0 disables (default: 0)
	Burst             int           `yaml:"burst"`               // Rate limiter burst (default: 1)
}

// MemoryConfig contains workspace and digest configuration.
type MemoryConfig struct {
	Workspace      string `yaml:"workspace"`           // Agent workspace root (default: ./workspace)
	MaxDigestChars int    `yaml:"memory_md_max_chars"` // Soft cap for MEMORY.md (default: 6000)
	Window         int    `yaml:"memory_window"`       // Consolidation window; half is kept unconsolidated (default: 50)
	RecentEpisodes int    `yaml:"recent_episodes"`     // Episodes included in the memory context (default: 3)
}

// BoundaryConfig contains the boundary detector limits.
type BoundaryConfig struct {
	HardTokenLimit   int     `yaml:"hard_token_limit"`   // Force split at this estimated token count (default: 8192)
	HardMessageLimit int     `yaml:"hard_message_limit"` // Force split at this message count (default: 50)
	CharsPerToken    int     `yaml:"chars_per_token"`    // Character-to-token proxy (default: 3)
	MaxAttempts      int     `yaml:"max_attempts"`       // LLM attempts before giving up (default: 3)
	Temperature      float64 `yaml:"temperature"`        // Sampling temperature (default: 0.1)
	Estimator        string  `yaml:"estimator"`          // chars or tiktoken (default: chars)
}

// StorageConfig contains cluster index configuration.
type StorageConfig struct {
	ClusterBackend string `yaml:"cluster_backend"` // json, sqlite, postgres (default: json)
	PostgresDSN    string `yaml:"postgres_dsn"`    // Required when ClusterBackend is postgres
}

var (
	validProviders  = []string{"openai", "anthropic", "ollama"}
	validBackends   = []string{"json", "sqlite", "postgres"}
	validEstimators = []string{"chars", "tiktoken"}
)

// LoadConfig loads configuration from environment variables with sensible defaults.
// All environment variables use the ENHANCEDMEM_ prefix.
func LoadConfig() (*Config, error) {
	return Load("")
}

// Load reads the YAML file at path (if path is non-empty) on top of the
// defaults, then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns a Config populated with built-in defaults only.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  60 * time.Second,
			Burst:    1,
		},
		Memory: MemoryConfig{
			Workspace:      "./workspace",
			MaxDigestChars: 6000,
			Window:         50,
			RecentEpisodes: 3,
		},
		Boundary: BoundaryConfig{
			HardTokenLimit:   8192,
			HardMessageLimit: 50,
			CharsPerToken:    3,
			MaxAttempts:      3,
			Temperature:      0.1,
			Estimator:        "chars",
		},
		Storage: StorageConfig{
			ClusterBackend: "json",
		},
	}
}

// Validate checks that enumerated settings hold known values and that limits
// are positive.
func (c *Config) Validate() error {
	if !contains(validProviders, c.LLM.Provider) {
		return fmt.Errorf("config: unsupported llm provider %q", c.LLM.Provider)
	}
	if !contains(validBackends, c.Storage.ClusterBackend) {
		return fmt.Errorf("config: unsupported cluster backend %q", c.Storage.ClusterBackend)
	}
	if c.Storage.ClusterBackend == "postgres" && c.Storage.PostgresDSN == "" {
		return errors.New("config: postgres cluster backend requires postgres_dsn")
	}
	if !contains(validEstimators, c.Boundary.Estimator) {
		return fmt.Errorf("config: unsupported token estimator %q", c.Boundary.Estimator)
	}
	if c.Boundary.HardTokenLimit <= 0 || c.Boundary.HardMessageLimit <= 0 ||
		c.Boundary.CharsPerToken <= 0 || c.Boundary.MaxAttempts <= 0 {
		return errors.New("config: boundary limits must be positive")
	}
	if c.Memory.MaxDigestChars <= 0 {
		return errors.New("config: memory_md_max_chars must be positive")
	}
	if c.Memory.Window < 0 {
		return errors.New("config: memory_window must not be negative")
	}
	return nil
}

// applyEnv overrides cfg with any ENHANCEDMEM_* variables that are set.
func applyEnv(cfg *Config) {
	cfg.LLM.Provider = getEnv("ENHANCEDMEM_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnv("ENHANCEDMEM_LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.APIKey = getEnv("ENHANCEDMEM_LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.BaseURL = getEnv("ENHANCEDMEM_LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Timeout = getEnvDuration("ENHANCEDMEM_LLM_TIMEOUT", cfg.LLM.Timeout)
	cfg.LLM.RequestsPerSecond = getEnvFloat("ENHANCEDMEM_LLM_RPS", cfg.LLM.RequestsPerSecond)
	cfg.LLM.Burst = getEnvInt("ENHANCEDMEM_LLM_BURST", cfg.LLM.Burst)

	cfg.Memory.Workspace = getEnv("ENHANCEDMEM_WORKSPACE", cfg.Memory.Workspace)
	cfg.Memory.MaxDigestChars = getEnvInt("ENHANCEDMEM_MEMORY_MD_MAX_CHARS", cfg.Memory.MaxDigestChars)
	cfg.Memory.Window = getEnvInt("ENHANCEDMEM_MEMORY_WINDOW", cfg.Memory.Window)
	cfg.Memory.RecentEpisodes = getEnvInt("ENHANCEDMEM_RECENT_EPISODES", cfg.Memory.RecentEpisodes)

	cfg.Boundary.HardTokenLimit = getEnvInt("ENHANCEDMEM_HARD_TOKEN_LIMIT", cfg.Boundary.HardTokenLimit)
	cfg.Boundary.HardMessageLimit = getEnvInt("ENHANCEDMEM_HARD_MESSAGE_LIMIT", cfg.Boundary.HardMessageLimit)
	cfg.Boundary.CharsPerToken = getEnvInt("ENHANCEDMEM_CHARS_PER_TOKEN", cfg.Boundary.CharsPerToken)
	cfg.Boundary.MaxAttempts = getEnvInt("ENHANCEDMEM_BOUNDARY_MAX_ATTEMPTS", cfg.Boundary.MaxAttempts)
	cfg.Boundary.Temperature = getEnvFloat("ENHANCEDMEM_BOUNDARY_TEMPERATURE", cfg.Boundary.Temperature)
	cfg.Boundary.Estimator = getEnv("ENHANCEDMEM_TOKEN_ESTIMATOR", cfg.Boundary.Estimator)

	cfg.Storage.ClusterBackend = getEnv("ENHANCEDMEM_CLUSTER_BACKEND", cfg.Storage.ClusterBackend)
	cfg.Storage.PostgresDSN = getEnv("ENHANCEDMEM_POSTGRES_DSN", cfg.Storage.PostgresDSN)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (e.g. "30s") or
// returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
