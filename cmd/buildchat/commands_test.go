package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildchat/internal/config"
	"buildchat/internal/projects"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type agentServer struct {
	mu       sync.Mutex
	sessions []map[string]any
	sent     []map[string]any
	dirs     []string
	streams  int
}

func (a *agentServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /session", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		writeJSON(w, a.sessions)
	})
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "ses_new", "directory": r.URL.Query().Get("directory")})
	})
	mux.HandleFunc("POST /session/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Logf("decode message: %v", err)
		}
		a.mu.Lock()
		a.sent = append(a.sent, body)
		a.dirs = append(a.dirs, r.URL.Query().Get("directory"))
		a.mu.Unlock()
		writeJSON(w, map[string]any{
			"info": map[string]any{"id": "msg_reply", "role": "assistant", "sessionID": r.PathValue("id"), "finish": "stop"},
			"parts": []map[string]any{
				{"id": "prt_1", "messageID": "msg_reply", "type": "text", "text": "Done. Open index.html to play."},
			},
		})
	})
	mux.HandleFunc("GET /stream", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.streams++
		a.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		<-r.Context().Done()
	})
	mux.HandleFunc("GET /question", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []any{})
	})
	mux.HandleFunc("GET /session/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []any{})
	})
	mux.HandleFunc("GET /config/providers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"providers": []any{}, "default": map[string]any{}})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type harness struct {
	dataDir string
	stdout  bytes.Buffer
	stderr  bytes.Buffer
}

func newHarness(t *testing.T, baseURL string) *harness {
	t.Helper()
	h := &harness{dataDir: filepath.Join(t.TempDir(), "data")}
	t.Setenv("BUILDCHAT_HOME", h.dataDir)
	require.NoError(t, os.MkdirAll(h.dataDir, 0o700))
	content := fmt.Sprintf("[server]\nbase_url = %q\n\n[stream]\nmax_reconnects = 0\n\n[chat]\ndirectory = \"/tmp/game\"\n", baseURL)
	require.NoError(t, os.WriteFile(filepath.Join(h.dataDir, "config.toml"), []byte(content), 0o600))
	return h
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	root := newRootCommand(commandWiring{
		stdout:    &h.stdout,
		stderr:    &h.stderr,
		logOutput: func() (io.WriteCloser, error) { return nopWriteCloser{io.Discard}, nil },
		version:   "test",
	})
	root.SetArgs(append(args, "--log-level", "error"))
	return root.ExecuteContext(context.Background())
}

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:4096")

	require.NoError(t, h.run(t, "config"))
	assert.Contains(t, h.stdout.String(), `base_url = 'http://127.0.0.1:4096'`)

	require.NoError(t, h.run(t, "config", "--default"))
	assert.Contains(t, h.stdout.String(), `base_url = 'http://127.0.0.1:8686'`)
}

func TestSessionsCommandListsNewestFirst(t *testing.T) {
	agent := &agentServer{sessions: []map[string]any{
		{"id": "ses_old", "title": "first try", "time": map[string]any{"created": 1000}},
		{"id": "ses_new", "title": "snake game", "providerID": "anthropic", "modelID": "claude-sonnet", "time": map[string]any{"created": 2000}},
	}}
	server := httptest.NewServer(agent.handler(t))
	defer server.Close()
	h := newHarness(t, server.URL)

	require.NoError(t, h.run(t, "sessions"))
	lines := strings.Split(strings.TrimSpace(h.stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "ses_new"))
	assert.Contains(t, lines[1], "anthropic/claude-sonnet")
	assert.True(t, strings.HasPrefix(lines[2], "ses_old"))
}

func TestSendCommandPrintsReply(t *testing.T) {
	agent := &agentServer{}
	server := httptest.NewServer(agent.handler(t))
	defer server.Close()
	h := newHarness(t, server.URL)

	require.NoError(t, h.run(t, "send", "make", "a", "snake", "game"))
	assert.Equal(t, "Done. Open index.html to play.\n", h.stdout.String())

	agent.mu.Lock()
	defer agent.mu.Unlock()
	require.Len(t, agent.sent, 1)
	parts, ok := agent.sent[0]["parts"].([]any)
	require.True(t, ok)
	require.Len(t, parts, 1)
	assert.Equal(t, "make a snake game", parts[0].(map[string]any)["text"])
}

func TestSendWithoutDirectoryFails(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:4096")
	require.NoError(t, os.WriteFile(filepath.Join(h.dataDir, "config.toml"), nil, 0o600))

	err := h.run(t, "send", "hello")
	require.ErrorIs(t, err, errNoDirectory)
	assert.Contains(t, h.stderr.String(), "send error:")
}

func TestResolveDirectory(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	t.Setenv("BUILDCHAT_HOME", dataDir)
	cwd, err := os.Getwd()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Chat.Directory = "/srv/from-config"

	tests := []struct {
		flag string
		want string
	}{
		{flag: "", want: "/srv/from-config"},
		{flag: "/tmp/game/", want: "/tmp/game"},
		{flag: "snake", want: filepath.Join(dataDir, "projects", "snake")},
		{flag: "./local", want: filepath.Join(cwd, "local")},
	}
	for _, tt := range tests {
		opts := &globalOptions{directory: tt.flag}
		got, err := opts.resolveDirectory(cfg)
		require.NoError(t, err, tt.flag)
		assert.Equal(t, tt.want, got, tt.flag)
	}
}

func TestVersionFlag(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:4096")
	require.NoError(t, h.run(t, "--version"))
	assert.Contains(t, h.stdout.String(), "test")
}

func TestProjectsCreateSelectAndDelete(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:4096")
	root := filepath.Join(h.dataDir, "projects")

	require.NoError(t, h.run(t, "projects", "create", "snake"))
	assert.Equal(t, filepath.Join(root, "snake")+"\n", h.stdout.String())
	assert.FileExists(t, filepath.Join(root, "snake", "README.md"))

	require.NoError(t, h.run(t, "projects", "current"))
	assert.Equal(t, "no project selected\n", h.stdout.String())

	require.NoError(t, h.run(t, "projects", "create", "pong", "--select"))
	require.NoError(t, h.run(t, "projects", "current"))
	assert.Equal(t, filepath.Join(root, "pong")+"\n", h.stdout.String())

	require.NoError(t, h.run(t, "projects"))
	lines := strings.Split(strings.TrimSpace(h.stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	for _, line := range lines[1:] {
		assert.Equal(t, strings.Contains(line, "pong"), strings.HasPrefix(line, "*"), line)
	}

	err := h.run(t, "projects", "select", "missing")
	require.ErrorIs(t, err, projects.ErrNotFound)
	assert.Contains(t, h.stderr.String(), "select error:")

	require.NoError(t, h.run(t, "projects", "delete", "pong"))
	assert.NoDirExists(t, filepath.Join(root, "pong"))
	require.NoError(t, h.run(t, "projects", "current"))
	assert.Equal(t, "no project selected\n", h.stdout.String())
}

func TestSendFallsBackToSelectedProject(t *testing.T) {
	agent := &agentServer{}
	server := httptest.NewServer(agent.handler(t))
	defer server.Close()
	h := newHarness(t, server.URL)
	content := fmt.Sprintf("[server]\nbase_url = %q\n\n[stream]\nmax_reconnects = 0\n", server.URL)
	require.NoError(t, os.WriteFile(filepath.Join(h.dataDir, "config.toml"), []byte(content), 0o600))

	require.NoError(t, h.run(t, "projects", "create", "breakout", "--select"))
	require.NoError(t, h.run(t, "send", "add", "a", "paddle"))

	other := filepath.Join(t.TempDir(), "other")
	require.NoError(t, h.run(t, "send", "--directory", other, "hello"))
	require.NoError(t, h.run(t, "projects", "current"))
	assert.Equal(t, other+"\n", h.stdout.String(), "an explicit directory becomes the current project")

	agent.mu.Lock()
	defer agent.mu.Unlock()
	require.Len(t, agent.dirs, 2)
	assert.Equal(t, filepath.Join(h.dataDir, "projects", "breakout"), agent.dirs[0])
	assert.Equal(t, other, agent.dirs[1])
}
