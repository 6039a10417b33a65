package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/iambrandonn/nlsh/internal/fsutil"
)

// Config is the persisted nlsh configuration.
type Config struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	BaseURL        string `json:"base_url"`
	APIKeyEnv      string `json:"api_key_env"`
	MaxTries       int    `json:"max_tries"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// GenerateDefault creates a Config with default values.
func GenerateDefault() *Config {
	return &Config{
		Provider:       "openai",
		Model:          "gpt-4o-mini",
		BaseURL:        "https://api.openai.com/v1",
		APIKeyEnv:      "OPENAI_API_KEY",
		MaxTries:       3,
		TimeoutSeconds: 0,
	}
}

// Validate checks the configuration and returns user-friendly error messages.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("configuration error: missing required field 'provider'\n\nHint: Set a provider:\n  nlsh config set provider openai")
	}

	if c.Model == "" {
		return fmt.Errorf("configuration error: missing required field 'model'\n\nHint: Set a model:\n  nlsh config set model gpt-4o-mini")
	}

	if c.BaseURL == "" {
		return fmt.Errorf("configuration error: missing required field 'base_url'\n\nHint: Set the API endpoint:\n  nlsh config set base_url https://api.openai.com/v1")
	}

	if c.MaxTries < 1 {
		return fmt.Errorf("configuration error: invalid 'max_tries' value: %d\n\nHint: max_tries must be at least 1:\n  nlsh config set max_tries 3", c.MaxTries)
	}

	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("configuration error: invalid 'timeout_seconds' value: %d\n\nHint: timeout_seconds must be 0 (no timeout) or positive", c.TimeoutSeconds)
	}

	return nil
}

// ResolveAPIKey loads the provider API key from the environment, honoring a
// .env file in the working directory or next to the config file.
func (c *Config) ResolveAPIKey(configDir string) string {
	// Missing .env files are fine; only explicit values matter.
	_ = godotenv.Load()
	if configDir != "" {
		_ = godotenv.Load(filepath.Join(configDir, ".env"))
	}

	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// DefaultPath returns the standard config file location.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, "nlsh", "config.json"), nil
}

// LoadFromFile loads a configuration from a JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadOrCreate loads the config at path, creating it with defaults when it
// does not exist yet.
func LoadOrCreate(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadFromFile(path)
	}

	cfg := GenerateDefault()
	if err := cfg.SaveToFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes the configuration as JSON, atomically and with 0600
// permissions since API key references live here.
func (c *Config) SaveToFile(path string) error {
	if err := fsutil.AtomicWriteJSON(path, c); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// Set assigns a field by its JSON name. Used by `nlsh config set`.
func (c *Config) Set(field, value string) error {
	switch field {
	case "provider":
		c.Provider = value
	case "model":
		c.Model = value
	case "base_url":
		c.BaseURL = value
	case "api_key_env":
		c.APIKeyEnv = value
	case "max_tries":
		n, err := parsePositiveInt(value)
		if err != nil {
			return fmt.Errorf("configuration error: max_tries must be a positive integer, got %q", value)
		}
		c.MaxTries = n
	case "timeout_seconds":
		n, err := parseNonNegativeInt(value)
		if err != nil {
			return fmt.Errorf("configuration error: timeout_seconds must be a non-negative integer, got %q", value)
		}
		c.TimeoutSeconds = n
	default:
		return fmt.Errorf("configuration error: unknown field %q\n\nHint: valid fields are provider, model, base_url, api_key_env, max_tries, timeout_seconds", field)
	}
	return nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("not a positive integer: %s", s)
	}
	return n, nil
}

func parseNonNegativeInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("not a non-negative integer: %s", s)
	}
	return n, nil
}
