package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grzechuj/RtspRestreamServer/internal/arbiter"
)

func newTestArbiter(t *testing.T) *arbiter.Arbiter {
	t.Helper()
	a := arbiter.New(arbiter.Config{}, arbiter.Callbacks{})
	t.Cleanup(a.Close)
	return a
}

func TestHealth(t *testing.T) {
	srv := New("127.0.0.1:0", newTestArbiter(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestPathsAndClients(t *testing.T) {
	a := newTestArbiter(t)
	a.PublishStarted("pub", "alice", "/live/cam1", "sess-1")
	a.SubscribeStarted("sub", "bob", "/live/cam1")

	srv := New("127.0.0.1:0", a)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/paths", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var paths []arbiter.PathSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paths))
	require.Len(t, paths, 1)
	require.Equal(t, "/live/cam1", paths[0].Name)
	require.Equal(t, 1, paths[0].Subscribers)
	require.Equal(t, "pub", paths[0].Publisher)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/clients", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var clients []arbiter.ClientSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clients))
	require.Len(t, clients, 2)
}

func TestPathByName(t *testing.T) {
	a := newTestArbiter(t)
	a.SubscribeStarted("sub", "bob", "/live/cam1")

	srv := New("127.0.0.1:0", a)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/paths/live/cam1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap arbiter.PathSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, "/live/cam1", snap.Name)
	require.Empty(t, snap.Publisher)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/paths/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	a := newTestArbiter(t)
	a.PublishStarted("pub", "", "/a", "s1")
	a.SubscribeStarted("sub", "", "/a")
	a.SubscribeStarted("sub", "", "/b")

	srv := New("127.0.0.1:0", a)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats arbiter.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 2, stats.Paths)
	require.Equal(t, 2, stats.Clients)
	require.Equal(t, 2, stats.Subscribers)
	require.Equal(t, 1, stats.Publishers)
}

func TestStartAndClose(t *testing.T) {
	srv := New("127.0.0.1:0", newTestArbiter(t))
	require.NoError(t, srv.Start())
	require.NotNil(t, srv.Addr())

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.NoError(t, srv.Close())
}
