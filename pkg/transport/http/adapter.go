package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rhuss/runbox/pkg/api"
	"github.com/rhuss/runbox/pkg/transport"
)

// Services are the backends the adapter routes to. Executor is required;
// the others are optional and their endpoints answer 503 (or 501 for
// history) when unset.
type Services struct {
	Executor   transport.Executor
	Classifier transport.Classifier
	Corrector  transport.Corrector
	Tasks      transport.TaskManager
	History    transport.HistoryReader

	// Health returns the payload of GET /healthz, typically sandbox.Info.
	Health func() any
}

// Adapter serves the execution API over HTTP.
// It routes requests to the appropriate service and serializes results.
type Adapter struct {
	svc      Services
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
	handler  http.Handler
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	Validation  api.ValidationConfig

	// WaitTimeout is used by the task wait endpoint when no timeout
	// parameter is given.
	WaitTimeout time.Duration

	// CleanupMaxAge is used by the task cleanup endpoint when the body
	// omits max_age.
	CleanupMaxAge time.Duration
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:   2 << 20, // 2 MB
		Validation:    api.DefaultValidationConfig(),
		WaitTimeout:   30 * time.Second,
		CleanupMaxAge: time.Hour,
	}
}

// NewAdapter creates an HTTP adapter for svc. Middleware wraps the whole mux
// in the given order, the first entry being the outermost.
func NewAdapter(svc Services, cfg Config, middlewares ...transport.Middleware) *Adapter {
	a := &Adapter{
		svc:      svc,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /v1/executions", a.handleExecute)
	a.mux.HandleFunc("DELETE /v1/executions/{id}", a.handleCancelExecution)
	a.mux.HandleFunc("POST /v1/corrections", a.handleCorrect)

	a.mux.HandleFunc("POST /v1/tasks", a.handleSubmitTask)
	a.mux.HandleFunc("GET /v1/tasks", a.handleListTasks)
	a.mux.HandleFunc("POST /v1/tasks/cleanup", a.handleCleanupTasks)
	a.mux.HandleFunc("GET /v1/tasks/{id}", a.handleGetTask)
	a.mux.HandleFunc("GET /v1/tasks/{id}/wait", a.handleWaitTask)
	a.mux.HandleFunc("DELETE /v1/tasks/{id}", a.handleCancelTask)

	a.mux.HandleFunc("GET /v1/errors", a.handleListErrors)
	a.mux.HandleFunc("DELETE /v1/errors", a.handleClearErrors)
	a.mux.HandleFunc("GET /v1/history", a.handleListHistory)

	a.mux.HandleFunc("GET /healthz", a.handleHealth)

	a.handler = transport.Chain(middlewares...)(a.mux)
	return a
}

// Handle mounts an additional handler, such as /metrics or /mcp, behind
// the adapter's middleware.
func (a *Adapter) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest.
func (a *Adapter) Handler() http.Handler {
	return a.handler
}

// InFlight exposes the registry of running synchronous executions.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// executionResponse is the body of POST /v1/executions.
type executionResponse struct {
	api.ExecutionResult
	Success   bool           `json:"success"`
	RequestID string         `json:"request_id,omitempty"`
	Diagnosis *api.Diagnosis `json:"diagnosis,omitempty"`
}

// handleExecute handles POST /v1/executions. The run is registered under
// the request ID so DELETE /v1/executions/{id} can interrupt it.
func (a *Adapter) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req api.ExecutionRequest
	if !a.decodeExecutionRequest(w, r, &req) {
		return
	}

	classify, err := parseBool(r, "classify")
	if err != nil {
		transport.WriteAPIError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := transport.RequestIDFromContext(ctx)
	if id != "" {
		a.inflight.Register(id, cancel)
		defer a.inflight.Remove(id)
	}

	res := a.svc.Executor.Execute(ctx, req.Code, req.Language)
	resp := executionResponse{ExecutionResult: res, Success: res.Success(), RequestID: id}

	if classify && !resp.Success && a.svc.Classifier != nil {
		d := a.svc.Classifier.ClassifyResult(res, map[string]any{
			"code":        req.Code,
			"language":    req.Language,
			"stdout":      res.Stdout,
			"stderr":      res.Stderr,
			"return_code": res.ExitCode,
			"request_id":  id,
		})
		resp.Diagnosis = &d
	}

	transport.WriteJSON(w, http.StatusOK, resp)
}

// handleCancelExecution handles DELETE /v1/executions/{id}.
func (a *Adapter) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if a.inflight.Cancel(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	transport.WriteAPIError(w, api.NewNotFoundError("no running execution "+id))
}

// handleCorrect handles POST /v1/corrections.
func (a *Adapter) handleCorrect(w http.ResponseWriter, r *http.Request) {
	if a.svc.Corrector == nil {
		transport.WriteAPIError(w, api.NewUnavailableError("code correction is not available (no generator configured)"))
		return
	}

	var req api.ExecutionRequest
	if !a.decodeExecutionRequest(w, r, &req) {
		return
	}

	transport.WriteJSON(w, http.StatusOK, a.svc.Corrector.Run(r.Context(), req.Code, req.Language))
}

// handleSubmitTask handles POST /v1/tasks.
func (a *Adapter) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	if !a.requireTasks(w) {
		return
	}

	var req api.ExecutionRequest
	if !a.decodeExecutionRequest(w, r, &req) {
		return
	}

	sub := a.svc.Tasks.SubmitCode(req.Code, req.Language)
	if sub.Status == api.TaskError {
		transport.WriteAPIError(w, api.NewUnavailableError(sub.Error))
		return
	}
	transport.WriteJSON(w, http.StatusAccepted, sub)
}

// handleListTasks handles GET /v1/tasks?status=.
func (a *Adapter) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if !a.requireTasks(w) {
		return
	}

	status := api.TaskStatus(r.URL.Query().Get("status"))
	switch status {
	case "", api.TaskRunning, api.TaskCompleted, api.TaskCancelled, api.TaskFailed:
	default:
		transport.WriteAPIError(w, api.NewInvalidRequestError("status",
			fmt.Sprintf("unknown task status %q", status)))
		return
	}

	transport.WriteJSON(w, http.StatusOK, a.svc.Tasks.List(status))
}

// handleGetTask handles GET /v1/tasks/{id}.
func (a *Adapter) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := a.taskID(w, r)
	if !ok {
		return
	}
	a.writeTaskResult(w, a.svc.Tasks.Result(id))
}

// handleWaitTask handles GET /v1/tasks/{id}/wait?timeout=.
func (a *Adapter) handleWaitTask(w http.ResponseWriter, r *http.Request) {
	id, ok := a.taskID(w, r)
	if !ok {
		return
	}

	timeout := a.config.WaitTimeout
	if s := r.URL.Query().Get("timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			transport.WriteAPIError(w, api.NewInvalidRequestError("timeout", "timeout must be a duration such as 5s"))
			return
		}
		timeout = d
	}
	if apiErr := api.ValidateWaitTimeout(timeout, a.config.Validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	a.writeTaskResult(w, a.svc.Tasks.Wait(r.Context(), id, timeout))
}

// handleCancelTask handles DELETE /v1/tasks/{id}.
func (a *Adapter) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := a.taskID(w, r)
	if !ok {
		return
	}
	a.writeTaskResult(w, a.svc.Tasks.Cancel(id))
}

type cleanupRequest struct {
	MaxAge string `json:"max_age"`
}

type cleanupResponse struct {
	Removed int    `json:"removed"`
	MaxAge  string `json:"max_age"`
}

// handleCleanupTasks handles POST /v1/tasks/cleanup. An empty body uses the
// configured maximum age.
func (a *Adapter) handleCleanupTasks(w http.ResponseWriter, r *http.Request) {
	if !a.requireTasks(w) {
		return
	}

	var req cleanupRequest
	if r.ContentLength > 0 {
		if !a.decodeJSON(w, r, &req) {
			return
		}
	}

	maxAge := a.config.CleanupMaxAge
	if req.MaxAge != "" {
		d, err := time.ParseDuration(req.MaxAge)
		if err != nil || d < 0 {
			transport.WriteAPIError(w, api.NewInvalidRequestError("max_age", "max_age must be a non-negative duration such as 1h"))
			return
		}
		maxAge = d
	}

	n := a.svc.Tasks.Cleanup(maxAge)
	transport.WriteJSON(w, http.StatusOK, cleanupResponse{Removed: n, MaxAge: maxAge.String()})
}

// handleListErrors handles GET /v1/errors?limit=N.
func (a *Adapter) handleListErrors(w http.ResponseWriter, r *http.Request) {
	if a.svc.Classifier == nil {
		transport.WriteAPIError(w, api.NewUnavailableError("error history is not available"))
		return
	}
	limit, apiErr := a.parseLimit(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]any{"errors": a.svc.Classifier.History(limit)})
}

// handleClearErrors handles DELETE /v1/errors.
func (a *Adapter) handleClearErrors(w http.ResponseWriter, r *http.Request) {
	if a.svc.Classifier == nil {
		transport.WriteAPIError(w, api.NewUnavailableError("error history is not available"))
		return
	}
	a.svc.Classifier.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

// handleListHistory handles GET /v1/history?limit=N.
func (a *Adapter) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if a.svc.History == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "execution history is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	limit, apiErr := a.parseLimit(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	records, err := a.svc.History.List(r.Context(), limit)
	if err != nil {
		var e *api.APIError
		if !errors.As(err, &e) {
			e = api.NewServerError(err.Error())
		}
		transport.WriteAPIError(w, e)
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]any{"executions": records})
}

// handleHealth handles GET /healthz.
func (a *Adapter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if a.svc.Health != nil {
		body["sandbox"] = a.svc.Health()
	}
	body["tasks"] = a.svc.Tasks != nil
	body["correction"] = a.svc.Corrector != nil
	transport.WriteJSON(w, http.StatusOK, body)
}

func (a *Adapter) requireTasks(w http.ResponseWriter) bool {
	if a.svc.Tasks == nil {
		transport.WriteAPIError(w, api.NewUnavailableError("task execution is not available"))
		return false
	}
	return true
}

func (a *Adapter) taskID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !a.requireTasks(w) {
		return "", false
	}
	id := r.PathValue("id")
	if !api.ValidateTaskID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed task ID"))
		return "", false
	}
	return id, true
}

// writeTaskResult maps lookup outcomes onto HTTP status codes. Timeouts and
// running tasks are normal answers, the client polls again.
func (a *Adapter) writeTaskResult(w http.ResponseWriter, res api.TaskResult) {
	switch res.Status {
	case api.TaskNotFound:
		transport.WriteAPIError(w, api.NewNotFoundError("task "+res.TaskID+" not found"))
	case api.TaskAlreadyCompleted:
		transport.WriteJSON(w, http.StatusConflict, res)
	default:
		transport.WriteJSON(w, http.StatusOK, res)
	}
}

func (a *Adapter) parseLimit(r *http.Request) (int, *api.APIError) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return 0, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		limit = n
	}
	return api.ValidateListLimit(limit, a.config.Validation)
}

func parseBool(r *http.Request, name string) (bool, *api.APIError) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, api.NewInvalidRequestError(name, name+" must be a boolean")
	}
	return b, nil
}

func (a *Adapter) decodeExecutionRequest(w http.ResponseWriter, r *http.Request, req *api.ExecutionRequest) bool {
	if !a.decodeJSON(w, r, req) {
		return false
	}
	if apiErr := api.ValidateExecutionRequest(req, a.config.Validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return false
	}
	return true
}

// decodeJSON validates the content type, limits the body size and decodes
// the body into v. It writes the error response itself and reports false
// on failure.
func (a *Adapter) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return false
	}

	if a.config.MaxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return false
	}
	return true
}
