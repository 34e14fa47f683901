package client

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds client configuration.
type Config struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`     // Server base URL, e.g. http://127.0.0.1:8090
	Lang      string        `yaml:"lang" json:"lang"`             // Accept-Language header value
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`       // Per-request timeout (not applied to the event stream)
	QuietMode bool          `yaml:"quiet_mode" json:"quiet_mode"` // Suppress debug/info logs
}

// DefaultConfig returns a client configuration with sensible defaults.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:   baseURL,
		Lang:      "en-US",
		Timeout:   30 * time.Second,
		QuietMode: false,
	}
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}
