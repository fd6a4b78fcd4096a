// Hook manager: registration and execution of lifecycle hooks
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager manages hook registration and execution.
type Manager struct {
	hooks     map[EventType][]Hook
	stdioHook *StdioHook
	mu        sync.RWMutex
	pool      *executionPool
	logger    *slog.Logger
	config    Config
}

// NewManager creates a new hook manager.
func NewManager(config Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	m := &Manager{
		hooks:  make(map[EventType][]Hook),
		logger: logger,
		config: config,
		pool:   newExecutionPool(config.Concurrency, logger),
	}

	if config.StdioFormat != "" {
		_ = m.EnableStdioOutput(config.StdioFormat)
	}

	return m
}

// Register registers a hook for the specified event type.
func (m *Manager) Register(eventType EventType, hook Hook) error {
	if hook == nil {
		return fmt.Errorf("cannot register nil hook")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks[eventType] = append(m.hooks[eventType], hook)
	m.logger.Info("hook registered",
		"event_type", eventType,
		"hook_type", hook.Type(),
		"hook_id", hook.ID())

	return nil
}

// Unregister removes a hook by ID from the specified event type.
func (m *Manager) Unregister(eventType EventType, hookID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	hooks := m.hooks[eventType]
	for i, hook := range hooks {
		if hook.ID() == hookID {
			m.hooks[eventType] = append(hooks[:i], hooks[i+1:]...)
			m.logger.Info("hook unregistered",
				"event_type", eventType,
				"hook_id", hookID)
			return true
		}
	}

	return false
}

// Trigger executes all registered hooks for the given event.
func (m *Manager) Trigger(ctx context.Context, event Event) {
	if m == nil {
		return
	}

	m.mu.RLock()
	hooks := make([]Hook, len(m.hooks[event.Type]))
	copy(hooks, m.hooks[event.Type])
	stdio := m.stdioHook
	m.mu.RUnlock()

	if stdio != nil {
		hooks = append(hooks, stdio)
	}
	if len(hooks) == 0 {
		return
	}

	m.logger.Debug("triggering event",
		"event_type", event.Type,
		"hook_count", len(hooks),
		"event", event.String())

	for _, hook := range hooks {
		m.pool.execute(ctx, hook, event, m.config.Timeout)
	}
}

// EnableStdioOutput enables structured output to stderr.
func (m *Manager) EnableStdioOutput(format string) error {
	if format != "json" && format != "env" {
		return fmt.Errorf("unsupported stdio format: %s", format)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stdioHook = NewStdioHook("stdio", format)
	m.logger.Info("stdio output enabled", "format", format)

	return nil
}

// DisableStdioOutput disables structured output.
func (m *Manager) DisableStdioOutput() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stdioHook = nil
}

// Stats returns statistics about registered hooks.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hooksByType := make(map[string]int)
	totalHooks := 0
	for eventType, hooks := range m.hooks {
		hooksByType[string(eventType)] = len(hooks)
		totalHooks += len(hooks)
	}

	return map[string]interface{}{
		"event_types":   len(m.hooks),
		"total_hooks":   totalHooks,
		"hooks_by_type": hooksByType,
		"stdio_enabled": m.stdioHook != nil,
		"pool_size":     m.pool.size,
	}
}

// Close shuts down the hook manager and waits for pending executions.
func (m *Manager) Close() error {
	if m.pool != nil {
		m.pool.close()
	}
	m.logger.Info("hook manager closed")
	return nil
}

// executionPool bounds concurrent hook execution.
type executionPool struct {
	workers chan struct{}
	size    int
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func newExecutionPool(size int, logger *slog.Logger) *executionPool {
	if size <= 0 {
		size = 10
	}

	return &executionPool{
		workers: make(chan struct{}, size),
		size:    size,
		logger:  logger,
	}
}

// execute runs a hook asynchronously, blocking a pool slot for its duration.
func (ep *executionPool) execute(ctx context.Context, hook Hook, event Event, timeout time.Duration) {
	ep.wg.Add(1)
	go func() {
		defer ep.wg.Done()

		ep.workers <- struct{}{}
		defer func() { <-ep.workers }()

		execCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		err := hook.Execute(execCtx, event)
		duration := time.Since(start)

		if err != nil {
			ep.logger.Error("hook execution failed",
				"hook_type", hook.Type(),
				"hook_id", hook.ID(),
				"event_type", event.Type,
				"duration_ms", duration.Milliseconds(),
				"error", err)
		} else {
			ep.logger.Debug("hook executed",
				"hook_type", hook.Type(),
				"hook_id", hook.ID(),
				"event_type", event.Type,
				"duration_ms", duration.Milliseconds())
		}
	}()
}

// close waits for all in-flight hook executions to finish.
func (ep *executionPool) close() {
	ep.wg.Wait()
}
