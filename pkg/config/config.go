// Package config provides configuration handling for connectsync.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Console configuration
	Console ConsoleConfig `json:"console" yaml:"console"`

	// HTTP client configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Browser configuration, used by form logins only
	Browser BrowserConfig `json:"browser" yaml:"browser"`

	// AWS configuration, used by federated logins only
	AWS AWSConfig `json:"aws" yaml:"aws"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ConsoleConfig describes how to reach the admin console of an instance
type ConsoleConfig struct {
	// BaseURL is the console root. A %s verb receives the instance alias;
	// without one every alias maps to the same URL, e.g. a local proxy.
	BaseURL string `json:"base_url" yaml:"base_url" validate:"required,startswith=http"`

	// SessionCookie is the name of the cookie carrying the bearer token
	SessionCookie string `json:"session_cookie" yaml:"session_cookie" validate:"required"`
}

// HTTPConfig contains outbound HTTP settings
type HTTPConfig struct {
	// Timeout bounds every console request
	Timeout Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`

	// RateLimit caps console requests per second; zero disables pacing
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
}

// BrowserConfig contains headless browser settings
type BrowserConfig struct {
	// ChromiumPath overrides the browser executable
	ChromiumPath string `json:"chromium_path" yaml:"chromium_path"`

	// LoginTimeout bounds the whole form login
	LoginTimeout Duration `json:"login_timeout" yaml:"login_timeout" validate:"gt=0"`

	// Headless runs the browser without a window
	Headless bool `json:"headless" yaml:"headless"`
}

// AWSConfig contains settings for the federation token exchange
type AWSConfig struct {
	// Region is the AWS region of the instance; empty uses the SDK default chain
	Region string `json:"region" yaml:"region"`

	// Profile selects a shared credentials profile
	Profile string `json:"profile" yaml:"profile"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Level is the logging level
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`

	// Format is the log format
	Format string `json:"format" yaml:"format" validate:"oneof=console json"`
}

// Duration is a time.Duration that reads and writes as a string such as "30s"
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadConfig loads the configuration from a file, starting from the defaults.
// Files ending in .yaml or .yml are decoded as YAML, anything else as JSON.
func LoadConfig(path string) (*Config, error) {
	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Console: ConsoleConfig{
			BaseURL:       "https://%s.awsapps.com",
			SessionCookie: "lily-auth-prod-lhr",
		},
		HTTP: HTTPConfig{
			Timeout: Duration(30 * time.Second),
		},
		Browser: BrowserConfig{
			LoginTimeout: Duration(60 * time.Second),
			Headless:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	// Create the directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write the file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// InstanceURL returns the console base URL for an instance alias
func (c ConsoleConfig) InstanceURL(alias string) string {
	url := c.BaseURL
	if strings.Contains(url, "%s") {
		url = fmt.Sprintf(url, alias)
	}
	return strings.TrimRight(url, "/")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
