package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildchat/internal/stream"
	"buildchat/internal/types"
)

const taskPartEvent = `{"type":"message.part.updated","properties":{"part":{"id":"p1","messageID":"m1","sessionID":"s1","type":"tool","tool":"task","callID":"c1","state":{"status":"running","input":{"subagent_type":"explore","description":"map the level"}}}}}`

func newTestServer(t *testing.T, upstream string) *Server {
	t.Helper()
	srv, err := New(Config{Upstream: upstream})
	require.NoError(t, err)
	return srv
}

func readEvents(t *testing.T, body io.Reader) []types.Event {
	t.Helper()
	decoder := stream.NewDecoder(body)
	var events []types.Event
	for {
		event, err := decoder.Next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return events
		}
		events = append(events, event)
	}
}

func TestNewRequiresUpstream(t *testing.T) {
	_, err := New(Config{Upstream: "  "})
	require.Error(t, err)

	srv, err := New(Config{Upstream: "127.0.0.1:2380/"})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:2380", srv.upstream)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:2380")

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "http://127.0.0.1:2380", body["upstream"])
}

func TestStreamRelaysAndEnhancesFrames(t *testing.T) {
	queries := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		assert.Equal(t, "/event", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprintf(w, "data: %s\n\n", taskPartEvent)
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, "data: {\"type\":\"session.idle\",\"properties\":{\"sessionID\":\"s1\"}}\n\n")
	}))
	defer upstream.Close()
	srv := newTestServer(t, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/stream?directory=/tmp/game&enhance=true", nil)
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "directory=%2Ftmp%2Fgame", <-queries)
	assert.Contains(t, string(raw), ": keepalive\n\n")
	assert.Contains(t, string(raw), "data: not json\n\n", "invalid payloads pass through untouched")

	events := readEvents(t, strings.NewReader(string(raw)))
	require.Len(t, events, 2)
	assert.Equal(t, types.EventMessagePartUpdated, events[0].Type)
	assert.True(t, events[0].IsSubagent)
	assert.Equal(t, "explore", events[0].SubagentType)
	assert.Equal(t, "map the level", events[0].SubagentDescription)
	assert.NotEmpty(t, events[0].ToolCategory)
	assert.Equal(t, types.EventSessionIdle, events[1].Type)
}

func TestStreamWithoutEnhanceIsVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", taskPartEvent)
	}))
	defer upstream.Close()
	srv := newTestServer(t, upstream.URL)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/stream", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "event: message\ndata: "+taskPartEvent+"\n\n", string(raw))
}

func TestStreamUpstreamFailuresBecomeConnectionErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name     string
		upstream string
		contains string
	}{
		{name: "status", upstream: failing.URL, contains: "Status 503"},
		{name: "unreachable", upstream: closedURL, contains: "connect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.upstream)
			resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/stream?enhance=1", nil), -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			events := readEvents(t, resp.Body)
			require.Len(t, events, 1)
			assert.Equal(t, types.EventConnectionError, events[0].Type)
			var props types.ConnectionErrorProperties
			require.NoError(t, events[0].DecodeProperties(&props))
			assert.Contains(t, props.Error, tt.contains)
		})
	}
}

func TestPassthroughForwardsMethodPathAndBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
			"query":  r.URL.RawQuery,
			"body":   string(body),
		})
	}))
	defer upstream.Close()
	srv := newTestServer(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "/session/s1/message?directory=%2Ftmp%2Fgame", strings.NewReader(`{"parts":[]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var echoed map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&echoed))
	assert.Equal(t, http.MethodPost, echoed["method"])
	assert.Equal(t, "/session/s1/message", echoed["path"])
	assert.Equal(t, "directory=%2Ftmp%2Fgame", echoed["query"])
	assert.Equal(t, `{"parts":[]}`, echoed["body"])
}

func TestParseFlag(t *testing.T) {
	for _, raw := range []string{"1", "true", " TRUE ", "yes", "on"} {
		assert.True(t, parseFlag(raw), raw)
	}
	for _, raw := range []string{"", "0", "false", "nope"} {
		assert.False(t, parseFlag(raw), raw)
	}
}
