// Package config loads and validates the server's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	RTSP  RTSPConfig  `yaml:"rtsp"`
	API   APIConfig   `yaml:"api"`
	Log   LogConfig   `yaml:"log"`
	Hooks HooksConfig `yaml:"hooks"`
	Auth  AuthConfig  `yaml:"auth"`
}

// RTSPConfig configures the restream listener and admission limits.
type RTSPConfig struct {
	Listen string `yaml:"listen"` // TCP listen address, default :8554

	// MaxPaths limits how many distinct paths may exist at once across the
	// whole registry. Enforced at the protocol-engine boundary. 0 = unlimited.
	MaxPaths uint `yaml:"max_paths"`

	// MaxSubscribersPerPath limits concurrently active subscribers on one
	// path. 0 = unlimited.
	MaxSubscribersPerPath uint `yaml:"max_subscribers_per_path"`
}

// APIConfig configures the read-only status HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // default :9997
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug|info|warn|error
}

// HooksConfig configures lifecycle event fan-out.
type HooksConfig struct {
	Timeout     string          `yaml:"timeout"`      // per-hook execution timeout, default 30s
	Concurrency int             `yaml:"concurrency"`  // max concurrent hook executions, default 10
	StdioFormat string          `yaml:"stdio_format"` // "json", "env" or empty (disabled)
	Webhooks    []WebhookConfig `yaml:"webhooks"`
	Shell       []ShellConfig   `yaml:"shell"`
}

// WebhookConfig registers an HTTP POST target for lifecycle events.
type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"` // empty = all lifecycle events
}

// ShellConfig registers a command executed on lifecycle events. Event fields
// are passed through the environment.
type ShellConfig struct {
	Command string   `yaml:"command"`
	Events  []string `yaml:"events"`
}

// AuthConfig configures the static authorization service.
type AuthConfig struct {
	// AllowAnonymous grants read access to unauthenticated clients.
	AllowAnonymous bool         `yaml:"allow_anonymous"`
	Users          []UserConfig `yaml:"users"`
}

// UserConfig declares one user and the paths it may touch. Path lists accept
// "*" as a match-everything entry; otherwise entries are exact path names.
type UserConfig struct {
	Name     string   `yaml:"name"`
	Password string   `yaml:"password"`
	Publish  []string `yaml:"publish"` // paths the user may publish to
	Read     []string `yaml:"read"`    // paths the user may subscribe to
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyDefaults fills zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.RTSP.Listen == "" {
		c.RTSP.Listen = ":8554"
	}
	if c.API.Listen == "" {
		c.API.Listen = ":9997"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Hooks.Timeout == "" {
		c.Hooks.Timeout = "30s"
	}
	if c.Hooks.Concurrency == 0 {
		c.Hooks.Concurrency = 10
	}
}

func (c *Config) validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if _, err := time.ParseDuration(c.Hooks.Timeout); err != nil {
		return fmt.Errorf("invalid hooks timeout %q: %w", c.Hooks.Timeout, err)
	}
	if c.Hooks.Concurrency < 0 {
		return fmt.Errorf("hooks concurrency must be >= 0")
	}
	switch c.Hooks.StdioFormat {
	case "", "json", "env":
	default:
		return fmt.Errorf("invalid hooks stdio_format %q", c.Hooks.StdioFormat)
	}
	for i, w := range c.Hooks.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
	}
	for i, s := range c.Hooks.Shell {
		if s.Command == "" {
			return fmt.Errorf("shell hook %d: command is required", i)
		}
	}
	seen := make(map[string]struct{})
	for i, u := range c.Auth.Users {
		if u.Name == "" {
			return fmt.Errorf("auth user %d: name is required", i)
		}
		if _, dup := seen[u.Name]; dup {
			return fmt.Errorf("auth user %q declared twice", u.Name)
		}
		seen[u.Name] = struct{}{}
	}
	return nil
}

// HookTimeout returns the parsed hook timeout. validate guarantees it parses.
func (c *Config) HookTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Hooks.Timeout)
	return d
}
