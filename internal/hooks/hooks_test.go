// Hook system tests
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestEvent tests basic event creation and builder methods
func TestEvent(t *testing.T) {
	event := NewEvent(EventFirstSubscriber).
		WithPath("/cam1").
		WithUser("viewer").
		WithData("remote_addr", "192.168.1.100")

	if event.Type != EventFirstSubscriber {
		t.Errorf("Expected event type %s, got %s", EventFirstSubscriber, event.Type)
	}
	if event.Path != "/cam1" {
		t.Errorf("Expected path '/cam1', got %s", event.Path)
	}
	if event.User != "viewer" {
		t.Errorf("Expected user 'viewer', got %s", event.User)
	}
	if event.Data["remote_addr"] != "192.168.1.100" {
		t.Errorf("Expected remote_addr '192.168.1.100', got %v", event.Data["remote_addr"])
	}
	if event.Timestamp == 0 {
		t.Errorf("Expected non-zero timestamp")
	}

	if str := event.String(); str != "first_subscriber:/cam1" {
		t.Errorf("Expected string 'first_subscriber:/cam1', got %s", str)
	}
	if str := NewEvent(EventLastSubscriber).String(); str != "last_subscriber" {
		t.Errorf("Expected string 'last_subscriber', got %s", str)
	}
}

// recordingHook captures executed events for assertions.
type recordingHook struct {
	id string

	mu     sync.Mutex
	events []Event
}

func (h *recordingHook) Execute(_ context.Context, event Event) error {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
	return nil
}

func (h *recordingHook) Type() string { return "recording" }
func (h *recordingHook) ID() string   { return h.id }

func (h *recordingHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestManagerRegisterAndTrigger(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	hook := &recordingHook{id: "rec"}
	if err := m.Register(EventPublisherConnected, hook); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(EventPublisherConnected, nil); err == nil {
		t.Fatalf("expected error registering nil hook")
	}

	m.Trigger(context.Background(), *NewEvent(EventPublisherConnected).WithPath("/cam1"))
	m.Trigger(context.Background(), *NewEvent(EventLastSubscriber).WithPath("/cam1")) // no hook registered
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if hook.count() != 1 {
		t.Fatalf("expected 1 executed event, got %d", hook.count())
	}

	stats := m.Stats()
	if stats["total_hooks"] != 1 {
		t.Fatalf("expected 1 total hook, got %v", stats["total_hooks"])
	}
}

func TestManagerUnregister(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	hook := &recordingHook{id: "rec"}
	_ = m.Register(EventLastSubscriber, hook)

	if !m.Unregister(EventLastSubscriber, "rec") {
		t.Fatalf("expected unregister to succeed")
	}
	if m.Unregister(EventLastSubscriber, "rec") {
		t.Fatalf("expected second unregister to fail")
	}

	m.Trigger(context.Background(), *NewEvent(EventLastSubscriber))
	_ = m.Close()
	if hook.count() != 0 {
		t.Fatalf("unregistered hook still executed")
	}
}

func TestWebhookHook(t *testing.T) {
	var mu sync.Mutex
	var received []Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var e Event
		if err := json.Unmarshal(body, &e); err != nil {
			t.Errorf("invalid webhook body: %v", err)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing content type")
		}
		if r.Header.Get("X-Token") != "s3cret" {
			t.Errorf("missing custom header")
		}
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := NewWebhookHook("wh", srv.URL, 5*time.Second).AddHeader("X-Token", "s3cret")
	event := NewEvent(EventPublisherDisconnected).WithPath("/cam1")
	if err := hook.Execute(context.Background(), *event); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Type != EventPublisherDisconnected || received[0].Path != "/cam1" {
		t.Fatalf("unexpected webhook delivery: %+v", received)
	}
}

func TestWebhookHookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hook := NewWebhookHook("wh", srv.URL, 5*time.Second)
	if err := hook.Execute(context.Background(), *NewEvent(EventFirstSubscriber)); err == nil {
		t.Fatalf("expected error on 500 response")
	}
}

func TestStdioHookJSON(t *testing.T) {
	var buf bytes.Buffer
	hook := NewStdioHook("stdio", "json").SetOutput(&buf)

	event := NewEvent(EventFirstSubscriber).WithPath("/cam1").WithUser("alice")
	if err := hook.Execute(context.Background(), *event); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "RESTREAM_EVENT: ") {
		t.Fatalf("missing prefix: %q", line)
	}
	var decoded Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "RESTREAM_EVENT: ")), &decoded); err != nil {
		t.Fatalf("invalid JSON payload: %v", err)
	}
	if decoded.Path != "/cam1" || decoded.User != "alice" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestStdioHookEnv(t *testing.T) {
	var buf bytes.Buffer
	hook := NewStdioHook("stdio", "env").SetOutput(&buf)

	event := NewEvent(EventLastSubscriber).WithPath("/cam1")
	if err := hook.Execute(context.Background(), *event); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"RESTREAM_EVENT_TYPE=last_subscriber", "RESTREAM_PATH=/cam1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStdioHookBadFormat(t *testing.T) {
	hook := NewStdioHook("stdio", "xml")
	if err := hook.Execute(context.Background(), *NewEvent(EventFirstSubscriber)); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestShellHook(t *testing.T) {
	hook := NewShellHookWithCommand("sh", "/bin/true", nil)
	if hook.Type() != "shell" || hook.ID() != "sh" {
		t.Fatalf("unexpected identity: %s/%s", hook.Type(), hook.ID())
	}
	if err := hook.Execute(context.Background(), *NewEvent(EventFirstSubscriber)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	failing := NewShellHookWithCommand("sh", "/bin/false", nil)
	if err := failing.Execute(context.Background(), *NewEvent(EventFirstSubscriber)); err == nil {
		t.Fatalf("expected error from failing command")
	}
}

func TestShellHookInheritsEnvironment(t *testing.T) {
	hook := NewShellHook("env", `test -n "$PATH" && test "$RESTREAM_EVENT_TYPE" = "first_subscriber"`)
	if err := hook.Execute(context.Background(), *NewEvent(EventFirstSubscriber)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestBuildEnvironment(t *testing.T) {
	event := NewEvent(EventPublisherConnected).
		WithPath("/cam1").
		WithUser("camera1").
		WithData("session_id", "abc")
	env := buildEnvironment(*event, []string{"EXTRA=1"})

	joined := strings.Join(env, "\n")
	for _, want := range []string{
		"EXTRA=1",
		"RESTREAM_EVENT_TYPE=publisher_connected",
		"RESTREAM_PATH=/cam1",
		"RESTREAM_USER=camera1",
		"RESTREAM_SESSION_ID=abc",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("environment missing %q:\n%s", want, joined)
		}
	}
}
