// Hook interface and configuration
package hooks

import (
	"context"
	"time"
)

// Hook represents a handler that can be executed when an event occurs.
type Hook interface {
	// Execute runs the hook with the given event
	Execute(ctx context.Context, event Event) error

	// Type returns the hook type identifier
	Type() string

	// ID returns a unique identifier for this hook instance
	ID() string
}

// Config represents the configuration for the hook manager.
type Config struct {
	// Timeout for a single hook execution (default: 30s)
	Timeout time.Duration

	// Maximum number of concurrent hook executions (default: 10)
	Concurrency int

	// StdioFormat enables structured stdio output: "json", "env" or "" (off)
	StdioFormat string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		Concurrency: 10,
		StdioFormat: "",
	}
}
