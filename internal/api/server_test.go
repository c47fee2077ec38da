package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"digest-pipe/internal/events"
	"digest-pipe/internal/metrics"
	"digest-pipe/internal/pipeline"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s, err := NewServer("127.0.0.1:0")
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getStatus(t *testing.T, ts *httptest.Server) StatusResponse {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return status
}

func waitIdle(t *testing.T, ts *httptest.Server) StatusResponse {
	t.Helper()
	var status StatusResponse
	require.Eventually(t, func() bool {
		status = getStatus(t, ts)
		return !status.Running
	}, 10*time.Second, 10*time.Millisecond)
	return status
}

func TestStatusIdle(t *testing.T) {
	_, ts := newTestServer(t)

	status := getStatus(t, ts)
	assert.False(t, status.Running)
	assert.Empty(t, status.RunID)
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/run/start")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPresets(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/presets")
	require.NoError(t, err)
	defer resp.Body.Close()

	var presets []PresetInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&presets))
	require.Len(t, presets, len(pipeline.ListPresets()))
	assert.Equal(t, "reference", presets[0].Name)
	assert.Equal(t, 12, presets[0].Workers)
}

func TestRunStartInvalid(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/run/start", RunRequest{Preset: "nonexistent"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/run/start", RunRequest{Preset: "single", Workers: map[string]int{"sha512": 0}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "workers")

	resp, err := http.Post(ts.URL+"/api/run/start", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunToCompletion(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/run/start", RunRequest{Preset: "single", Quiet: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status := waitIdle(t, ts)
	assert.True(t, status.Complete)
	assert.NotEmpty(t, status.RunID)
	assert.Equal(t, uint64(2000), status.Merged)
	assert.Equal(t, uint64(2000), status.Expected)
	assert.Empty(t, status.LastError)

	res, err := http.Get(ts.URL + "/api/result")
	require.NoError(t, err)
	defer res.Body.Close()
	var result pipeline.Result
	require.NoError(t, json.NewDecoder(res.Body).Decode(&result))
	assert.Equal(t, uint64(1000), result.Completions["sha512"])
	assert.Equal(t, uint64(1000), result.Completions["blake3"])

	st, err := http.Get(ts.URL + "/api/stages")
	require.NoError(t, err)
	defer st.Body.Close()
	var stages []metrics.Utilization
	require.NoError(t, json.NewDecoder(st.Body).Decode(&stages))
	assert.Len(t, stages, 4)
}

func TestRunConflictAndStop(t *testing.T) {
	_, ts := newTestServer(t)

	long := RunRequest{Preset: "reference", Items: 1_000_000_000, Capacity: 1024, Quiet: true}
	resp := postJSON(t, ts.URL+"/api/run/start", long)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/run/start", long)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.Eventually(t, func() bool {
		r := postJSON(t, ts.URL+"/api/run/stop", struct{}{})
		return r.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	status := waitIdle(t, ts)
	assert.False(t, status.Complete)
	assert.Contains(t, status.LastError, "canceled")
}

func TestRunStopWhenIdle(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/run/stop", struct{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResultNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/result")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/run/start", RunRequest{Preset: "backpressure", Quiet: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	waitIdle(t, ts)

	m, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	body, err := io.ReadAll(m.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `digestpipe_stage_idle_seconds_total{stage="merger"}`)
	assert.Contains(t, text, `digestpipe_stage_blocked_seconds_total{stage="generator"}`)
	assert.Contains(t, text, "go_goroutines")
}

func TestWebSocketEvents(t *testing.T) {
	s, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, err := websocket.Dial(wsURL, "", ts.URL)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool {
		return s.Bus().SubscriberCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	resp := postJSON(t, ts.URL+"/api/run/start", RunRequest{Preset: "single", Quiet: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(10*time.Second)))
	var seen []events.EventType
	for {
		var ev events.Event
		require.NoError(t, websocket.JSON.Receive(ws, &ev))
		seen = append(seen, ev.Type)
		if ev.Type == events.EventRunComplete {
			assert.Equal(t, uint64(1000), ev.Data.Completions["sha512"])
			break
		}
	}

	assert.Equal(t, events.EventRunStart, seen[0])
}
