package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/runbox/pkg/api"
	"github.com/rhuss/runbox/pkg/config"
	"github.com/rhuss/runbox/pkg/history"
	"github.com/rhuss/runbox/pkg/history/memory"
	"github.com/rhuss/runbox/pkg/language"
	"github.com/rhuss/runbox/pkg/sandbox"
)

// echoBackend returns the script body as stdout without running anything.
type echoBackend struct{}

func (echoBackend) Name() string { return "echo" }

func (echoBackend) Run(_ context.Context, _ language.Spec, scriptPath, _ string, _ time.Duration) (sandbox.Output, error) {
	b, err := os.ReadFile(scriptPath)
	if err != nil {
		return sandbox.Output{}, err
	}
	return sandbox.Output{Stdout: string(b)}, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Sandbox.WorkspaceDir = t.TempDir()
	cfg.Sandbox.SecurityLevel = "low"
	cfg.Tasks.CleanupInterval = 0
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler),
		WithSandboxOptions(sandbox.WithBackend(echoBackend{})))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestNewDefaults(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	if a.Sandbox == nil || a.Classifier == nil || a.Tasks == nil {
		t.Fatal("core components missing")
	}
	if _, ok := a.History.(*memory.Store); !ok {
		t.Errorf("history = %T, want *memory.Store", a.History)
	}
	if a.Search != nil || a.Generator != nil || a.Loop != nil {
		t.Error("optional components should be nil without configuration")
	}

	res := a.Sandbox.Execute(context.Background(), "print('hi')", "python")
	if !strings.Contains(res.Stdout, "print('hi')") {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestNewOptionalComponents(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.BackendURL = "http://127.0.0.1:1/v1"
	cfg.Engine.Model = "test-model"
	cfg.Search.Enabled = true
	cfg.Search.URL = "http://127.0.0.1:1"
	cfg.History.Type = "none"

	a := newTestApp(t, cfg)
	if a.Search == nil || a.Generator == nil || a.Loop == nil {
		t.Errorf("search=%v generator=%v loop=%v", a.Search != nil, a.Generator != nil, a.Loop != nil)
	}
	if _, ok := a.History.(history.Nop); !ok {
		t.Errorf("history = %T, want history.Nop", a.History)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"unknown search backend", func(c *config.Config) {
			c.Search.Enabled = true
			c.Search.URL = "http://localhost"
			c.Search.Backend = "bing"
		}},
		{"unknown provider", func(c *config.Config) {
			c.Engine.BackendURL = "http://localhost:4000"
			c.Engine.Provider = "bedrock"
		}},
		{"bad postgres dsn", func(c *config.Config) {
			c.History.Type = "postgres"
			c.History.Postgres.DSN = "::not a dsn::"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(&cfg)
			if _, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHTTPServerRoutes(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	srv, err := a.HTTPServer("test")
	if err != nil {
		t.Fatalf("HTTPServer: %v", err)
	}
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"backend":"echo"`) {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "runbox_requests_total") {
		t.Errorf("metrics = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/corrections", strings.NewReader(`{"code":"x","language":"python"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("corrections without generator = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/tasks", strings.NewReader(`{"code":"echo hi","language":"bash"}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit task = %d %s", rec.Code, rec.Body.String())
	}
	var sub api.Submission
	json.NewDecoder(rec.Body).Decode(&sub)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/tasks/"+sub.TaskID+"/wait?timeout=5s", nil))
	var res api.TaskResult
	json.NewDecoder(rec.Body).Decode(&res)
	if res.Status != api.TaskCompleted || !strings.Contains(res.Stdout, "echo hi") {
		t.Errorf("task result = %+v", res)
	}
}

func TestHTTPServerAPIKeyAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Type = "apikey"
	cfg.Auth.APIKeys = []config.APIKeyConfig{{Key: "secret-key", Subject: "ci"}}
	cfg.MCP.Enabled = false

	a := newTestApp(t, cfg)
	srv, err := a.HTTPServer("test")
	if err != nil {
		t.Fatalf("HTTPServer: %v", err)
	}
	h := srv.Handler()

	body := `{"code":"echo hi","language":"bash"}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/executions", strings.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("POST", "/v1/executions", strings.NewReader(body))
	req.Header.Set("X-API-Key", "secret-key")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz should bypass auth, got %d", rec.Code)
	}
}

func TestNewAuthChain(t *testing.T) {
	for _, typ := range []string{"none", "apikey"} {
		if _, err := NewAuthChain(config.AuthConfig{Type: typ}, nil); err != nil {
			t.Errorf("NewAuthChain(%q): %v", typ, err)
		}
	}
	if _, err := NewAuthChain(config.AuthConfig{Type: "jwt"}, nil); err == nil {
		t.Error("jwt without secret should fail")
	}
	if _, err := NewAuthChain(config.AuthConfig{Type: "jwt", JWT: config.JWTConfig{Secret: "s3cret"}}, slog.New(slog.DiscardHandler)); err != nil {
		t.Errorf("jwt with secret: %v", err)
	}
	if _, err := NewAuthChain(config.AuthConfig{Type: "ldap"}, nil); err == nil {
		t.Error("unknown type should fail")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("json output = %q", out)
	}

	buf.Reset()
	NewLogger(config.LoggingConfig{Level: "bogus", Format: "text"}, &buf).Info("fallback")
	if !strings.Contains(buf.String(), "msg=fallback") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestNewLiteLLMProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.BackendURL = "http://127.0.0.1:4000"
	cfg.Engine.Provider = "litellm"
	cfg.Engine.ModelMapping = map[string]string{"coder": "ollama/qwen2.5-coder"}

	a := newTestApp(t, cfg)
	if a.Generator == nil || a.Loop == nil {
		t.Fatal("litellm provider should enable correction")
	}
}
