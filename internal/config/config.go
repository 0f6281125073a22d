package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models leadline.yml. The Gemini API key is deliberately not part of
// the file: it comes from the LEADLINE_GEMINI_API_KEY environment variable
// only, so a committed config never leaks a credential.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Assist struct {
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"assist"`
	Seed struct {
		Demo bool `yaml:"demo"`
	} `yaml:"seed"`
}

// APIKeyEnv names the environment variable holding the Gemini API key.
const APIKeyEnv = "LEADLINE_GEMINI_API_KEY"

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with ll config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Fields left
// empty keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Assist.Model == "" {
		return fmt.Errorf("config.assist.model is required")
	}
	if c.Assist.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.assist.timeout_seconds must be positive")
	}
	return nil
}

// AssistTimeout returns the configured per-call assistant timeout.
func (c *Config) AssistTimeout() time.Duration {
	return time.Duration(c.Assist.TimeoutSeconds) * time.Second
}

// APIKey reads the Gemini key from the environment. Empty means the assistant
// runs degraded: every call reports the service as unavailable.
func (c *Config) APIKey() string {
	return os.Getenv(APIKeyEnv)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "leadline.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8484"
	cfg.Server.BasePath = "/api/v1"
	cfg.Assist.Model = "gemini-3-flash-preview"
	cfg.Assist.TimeoutSeconds = 30
	cfg.Seed.Demo = true
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8484
  base_path: /api/v1

assist:
  model: gemini-3-flash-preview
  timeout_seconds: 30

seed:
  demo: true
`
