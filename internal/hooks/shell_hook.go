// Shell hook: runs a command with event fields in the environment
package hooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ShellHook executes a command when events occur.
type ShellHook struct {
	id      string
	command string
	args    []string
	env     []string
}

// NewShellHook creates a shell hook running scriptPath via /bin/sh.
func NewShellHook(id, scriptPath string) *ShellHook {
	return &ShellHook{
		id:      id,
		command: "/bin/sh",
		args:    []string{"-c", scriptPath},
	}
}

// NewShellHookWithCommand creates a shell hook with a custom command and args.
func NewShellHookWithCommand(id, command string, args []string) *ShellHook {
	return &ShellHook{
		id:      id,
		command: command,
		args:    args,
	}
}

// SetEnv sets additional environment variables for the command.
func (h *ShellHook) SetEnv(env []string) *ShellHook {
	h.env = env
	return h
}

// Execute runs the command with event data passed as environment variables.
// The manager's execution pool supplies the timeout via ctx.
func (h *ShellHook) Execute(ctx context.Context, event Event) error {
	cmd := exec.CommandContext(ctx, h.command, h.args...)
	cmd.Env = append(os.Environ(), buildEnvironment(event, h.env)...)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell hook %s: execution failed: %w", h.id, err)
	}
	return nil
}

// Type returns the hook type.
func (h *ShellHook) Type() string {
	return "shell"
}

// ID returns the hook ID.
func (h *ShellHook) ID() string {
	return h.id
}

// buildEnvironment creates environment variable assignments from event data.
func buildEnvironment(event Event, extra []string) []string {
	env := make([]string, 0, len(extra)+4+len(event.Data))
	env = append(env, extra...)
	env = append(env, "RESTREAM_EVENT_TYPE="+string(event.Type))
	env = append(env, fmt.Sprintf("RESTREAM_TIMESTAMP=%d", event.Timestamp))

	if event.Path != "" {
		env = append(env, "RESTREAM_PATH="+event.Path)
	}
	if event.User != "" {
		env = append(env, "RESTREAM_USER="+event.User)
	}
	for key, value := range event.Data {
		env = append(env, "RESTREAM_"+strings.ToUpper(key)+"="+fmt.Sprintf("%v", value))
	}

	return env
}
