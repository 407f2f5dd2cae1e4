package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"workpulse/sync-agent/internal/models"
	"workpulse/sync-agent/internal/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type noopSessions struct{}

func (noopSessions) Current() *models.WorkSession          { return nil }
func (noopSessions) SetClassification(models.ActivityKind) {}

type noopSubmitter struct{}

func (noopSubmitter) SubmitActivityLog(context.Context, string, models.ActivityLog) error {
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *monitor.ContextStore) {
	t.Helper()
	store := monitor.NewContextStore(time.Minute)
	mon := monitor.NewMonitor(noopSessions{}, noopSubmitter{}, nil, store,
		5*time.Minute, time.Minute, "WorkPulse Agent", zap.NewNop())

	status := func() map[string]interface{} {
		return map[string]interface{}{"connected": true}
	}

	srv := httptest.NewServer(NewInputServer(mon, store, status, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestHandleInput(t *testing.T) {
	srv, store := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/input", "application/json",
		strings.NewReader(`{"kind":"key_press","application":"Firefox","title":"Dashboard"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	app, title := store.Current()
	assert.Equal(t, "Firefox", app)
	assert.Equal(t, "Dashboard", title)
}

func TestHandleInput_UnknownKind(t *testing.T) {
	srv, store := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/input", "application/json",
		strings.NewReader(`{"kind":"gamepad","application":"Game"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	app, _ := store.Current()
	assert.Empty(t, app, "rejected input must not update window context")
}

func TestHandleInput_MalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/input", "application/json",
		strings.NewReader(`not json`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleInput_KindOnly(t *testing.T) {
	srv, store := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/input", "application/json",
		strings.NewReader(`{"kind":"pointer_move"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	app, title := store.Current()
	assert.Empty(t, app, "no window context without application or title")
	assert.Empty(t, title)
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, true, status["connected"])
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/input")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/input", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}
