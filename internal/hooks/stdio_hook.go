// Stdio hook: structured event output on stderr
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// StdioHook outputs event data in a machine-readable format.
type StdioHook struct {
	id     string
	format string // "json" or "env"
	output io.Writer
}

// NewStdioHook creates a new stdio hook. Output goes to stderr so it does
// not mix with normal server logging on stdout.
func NewStdioHook(id, format string) *StdioHook {
	return &StdioHook{
		id:     id,
		format: format,
		output: os.Stderr,
	}
}

// SetOutput redirects the hook's output (intended for tests).
func (h *StdioHook) SetOutput(output io.Writer) *StdioHook {
	h.output = output
	return h
}

// Execute outputs the event data in the configured format.
func (h *StdioHook) Execute(_ context.Context, event Event) error {
	switch h.format {
	case "json":
		return h.outputJSON(event)
	case "env":
		return h.outputEnv(event)
	default:
		return fmt.Errorf("stdio hook %s: unsupported format: %s", h.id, h.format)
	}
}

// Type returns the hook type.
func (h *StdioHook) Type() string {
	return "stdio"
}

// ID returns the hook ID.
func (h *StdioHook) ID() string {
	return h.id
}

// outputJSON writes the event as a JSON line prefixed with RESTREAM_EVENT:
func (h *StdioHook) outputJSON(event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("stdio hook %s: failed to marshal JSON: %w", h.id, err)
	}
	if _, err := fmt.Fprintf(h.output, "RESTREAM_EVENT: %s\n", string(jsonData)); err != nil {
		return fmt.Errorf("stdio hook %s: failed to write JSON: %w", h.id, err)
	}
	return nil
}

// outputEnv writes the event as environment variable assignments.
func (h *StdioHook) outputEnv(event Event) error {
	lines := append([]string{"# Lifecycle event: " + string(event.Type)}, buildEnvironment(event, nil)...)
	lines = append(lines, "") // blank line for readability

	for _, line := range lines {
		if _, err := fmt.Fprintln(h.output, line); err != nil {
			return fmt.Errorf("stdio hook %s: failed to write env line: %w", h.id, err)
		}
	}
	return nil
}
