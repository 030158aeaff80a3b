// Package integration runs runbox end to end: the HTTP API, the MCP
// endpoint and the correction loop, backed by a local bash sandbox and a
// mock code generator, all started in-process with net/http/httptest.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/runbox/pkg/app"
	"github.com/rhuss/runbox/pkg/config"
)

// testEnv holds the shared servers for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the runbox server and the mock generator.
type TestEnvironment struct {
	App         *app.App
	Server      *httptest.Server
	MockBackend *httptest.Server
	Workspace   string
}

func TestMain(m *testing.M) {
	if _, err := exec.LookPath("bash"); err != nil {
		fmt.Println("skipping integration tests: bash not available")
		os.Exit(0)
	}
	env, err := setupTestEnvironment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up integration environment: %v\n", err)
		os.Exit(1)
	}
	testEnv = env
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

// setupTestEnvironment wires a full App to a mock generator backend.
func setupTestEnvironment() (*TestEnvironment, error) {
	mock := startMockBackend()

	ws, err := os.MkdirTemp("", "runbox-integration-*")
	if err != nil {
		mock.Close()
		return nil, err
	}

	cfg := config.Defaults()
	cfg.Sandbox.WorkspaceDir = ws
	cfg.Sandbox.SecurityLevel = "low"
	cfg.Sandbox.Timeout = 10 * time.Second
	cfg.Sandbox.MaxRetries = 2
	cfg.Engine.BackendURL = mock.URL
	cfg.Engine.Model = "mock-coder"
	cfg.Tasks.CleanupInterval = 0
	cfg.History.Type = "memory"
	cfg.MCP.Enabled = true
	cfg.MCP.Path = "/mcp"

	a, err := app.New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		mock.Close()
		os.RemoveAll(ws)
		return nil, err
	}
	srv, err := a.HTTPServer("integration")
	if err != nil {
		a.Close(context.Background())
		mock.Close()
		os.RemoveAll(ws)
		return nil, err
	}

	return &TestEnvironment{
		App:         a,
		Server:      httptest.NewServer(srv.Handler()),
		MockBackend: mock,
		Workspace:   ws,
	}, nil
}

// Teardown stops the servers and removes the workspace.
func (env *TestEnvironment) Teardown() {
	env.Server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	env.App.Close(ctx)
	env.MockBackend.Close()
	os.RemoveAll(env.Workspace)
}

// BaseURL returns the runbox server base URL.
func (env *TestEnvironment) BaseURL() string {
	return env.Server.URL
}

// --- HTTP helpers ---

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func deleteURL(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("creating DELETE request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", url, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, readBody(t, resp))
	}
}

// --- Mock backend ---

var attemptPattern = regexp.MustCompile("(?s)the following (\\w+) code:\\s*```\\w*\\n(.*?)\\n```")

// startMockBackend serves Chat Completions replies that repair any failing
// bash snippet to "echo fixed", except snippets containing "no_fix".
func startMockBackend() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
			return
		}

		var prompt string
		for _, m := range req.Messages {
			if m.Role == "user" {
				prompt = m.Content
			}
		}
		text := "I am not sure how to fix this error."
		if m := attemptPattern.FindStringSubmatch(prompt); m != nil && !strings.Contains(m[2], "no_fix") {
			text = fmt.Sprintf("Try this:\n\n```%s\necho fixed\n```\n", m[1])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": text},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	})
	return httptest.NewServer(mux)
}
