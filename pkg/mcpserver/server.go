// Package mcpserver exposes the sandbox, the task executor and web search
// as Model Context Protocol tools, and the sandbox workspace as MCP
// resources. It serves over streamable HTTP or stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/runbox/pkg/api"
)

// DefaultName is the implementation name announced to MCP clients.
const DefaultName = "runbox"

// Executor runs code synchronously. *sandbox.Sandbox implements it.
type Executor interface {
	Execute(ctx context.Context, code, lang string) api.ExecutionResult
}

// Searcher answers web searches with formatted text. *search.Client
// implements it.
type Searcher interface {
	Search(ctx context.Context, query, focusMode string) (string, error)
}

// TaskManager is the subset of the task executor the tools need.
type TaskManager interface {
	SubmitCode(code, lang string) api.Submission
	Result(id string) api.TaskResult
	Cancel(id string) api.TaskResult
}

// HistorySink receives one record per execution and per search.
type HistorySink interface {
	Record(ctx context.Context, rec api.ExecutionRecord) error
}

// Server wraps an mcp.Server with the runbox tools and resources.
type Server struct {
	mcp       *mcp.Server
	exec      Executor
	searcher  Searcher
	tasks     TaskManager
	history   HistorySink
	workspace string
	info      func() any
	focusMode string
	logger    *slog.Logger
	now       func() time.Time
	name      string
	version   string
}

// Option configures a Server.
type Option func(*Server)

// WithSearcher enables the search tool.
func WithSearcher(s Searcher, defaultFocusMode string) Option {
	return func(srv *Server) {
		srv.searcher = s
		srv.focusMode = defaultFocusMode
	}
}

// WithTasks enables the submit_task, get_task_result and cancel_task tools.
func WithTasks(t TaskManager) Option {
	return func(s *Server) { s.tasks = t }
}

// WithHistory records tool executions and searches.
func WithHistory(h HistorySink) Option {
	return func(s *Server) { s.history = h }
}

// WithWorkspace enables the workspace resources rooted at dir. info, when
// non-nil, is rendered as JSON at the top of workspace://state.
func WithWorkspace(dir string, info func() any) Option {
	return func(s *Server) {
		s.workspace = dir
		s.info = info
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithImplementation overrides the announced name and version.
func WithImplementation(name, version string) Option {
	return func(s *Server) {
		if name != "" {
			s.name = name
		}
		if version != "" {
			s.version = version
		}
	}
}

// New builds the MCP server. Tools are registered according to the
// configured options; execute_code and its language shortcuts are always
// present.
func New(exec Executor, opts ...Option) *Server {
	s := &Server{
		exec:    exec,
		logger:  slog.Default(),
		now:     time.Now,
		name:    DefaultName,
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{Name: s.name, Version: s.version}, nil)
	s.registerTools()
	if s.workspace != "" {
		s.registerResources()
	}
	return s
}

// MCP returns the underlying mcp.Server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Handler returns a streamable HTTP handler serving this server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}

// ServeStdio serves a single client over stdin and stdout until ctx is
// done or the client disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", "name", s.name)
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

type codeInput struct {
	Code     string `json:"code" jsonschema:"the source code to run"`
	Language string `json:"language" jsonschema:"the language name, e.g. python or bash"`
}

type scriptInput struct {
	Code string `json:"code" jsonschema:"the source code to run"`
}

type searchInput struct {
	Query     string `json:"query" jsonschema:"the search query"`
	FocusMode string `json:"focus_mode,omitempty" jsonschema:"search focus mode, e.g. webSearch or academicSearch"`
}

type taskInput struct {
	TaskID string `json:"task_id" jsonschema:"the ID returned by submit_task"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "execute_code",
		Description: "Execute code in the sandbox workspace and return its output",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in codeInput) (*mcp.CallToolResult, any, error) {
		return s.execute(ctx, in.Code, in.Language)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "execute_python_code",
		Description: "Execute Python code in the sandbox workspace and return its output",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in scriptInput) (*mcp.CallToolResult, any, error) {
		return s.execute(ctx, in.Code, "python")
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "execute_bash_code",
		Description: "Execute Bash commands in the sandbox workspace and return their output",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in scriptInput) (*mcp.CallToolResult, any, error) {
		return s.execute(ctx, in.Code, "bash")
	})

	if s.searcher != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "search",
			Description: "Search the web for information",
		}, s.search)
	}

	if s.tasks != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "submit_task",
			Description: "Run code asynchronously and return a task ID",
		}, func(_ context.Context, _ *mcp.CallToolRequest, in codeInput) (*mcp.CallToolResult, any, error) {
			if in.Code == "" {
				return nil, nil, fmt.Errorf("code is required")
			}
			return jsonResult(s.tasks.SubmitCode(in.Code, in.Language))
		})

		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "get_task_result",
			Description: "Return the status or result of an asynchronous task",
		}, func(_ context.Context, _ *mcp.CallToolRequest, in taskInput) (*mcp.CallToolResult, any, error) {
			return jsonResult(s.tasks.Result(in.TaskID))
		})

		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "cancel_task",
			Description: "Cancel an asynchronous task that has not completed",
		}, func(_ context.Context, _ *mcp.CallToolRequest, in taskInput) (*mcp.CallToolResult, any, error) {
			return jsonResult(s.tasks.Cancel(in.TaskID))
		})
	}
}

// execute runs code and renders it the way interactive clients expect:
// stdout, or the error output prefixed with "Error:".
func (s *Server) execute(ctx context.Context, code, lang string) (*mcp.CallToolResult, any, error) {
	if code == "" {
		return nil, nil, fmt.Errorf("code is required")
	}
	res := s.exec.Execute(ctx, code, lang)
	s.record(ctx, api.ExecutionRecord{
		Code:      code,
		Language:  lang,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		Success:   res.Success(),
		CreatedAt: s.now(),
	})

	text := res.Stdout
	if res.Stderr != "" {
		text = "Error:\n" + res.Stderr
	}
	return textResult(text), nil, nil
}

func (s *Server) search(ctx context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, any, error) {
	focus := in.FocusMode
	if focus == "" {
		focus = s.focusMode
	}
	out, err := s.searcher.Search(ctx, in.Query, focus)
	if err != nil {
		s.logger.Warn("mcp search failed", "query", in.Query, "error", err)
		return nil, nil, err
	}
	s.record(ctx, api.ExecutionRecord{
		Code:      fmt.Sprintf("SEARCH_WEB: \"%s\" (Focus Mode: %s)", in.Query, focus),
		Language:  api.LanguageWebSearch,
		Stdout:    out,
		Success:   true,
		CreatedAt: s.now(),
	})
	return textResult(out), nil, nil
}

func (s *Server) record(ctx context.Context, rec api.ExecutionRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, rec); err != nil {
		s.logger.Warn("failed to record execution history", "language", rec.Language, "error", err)
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return textResult(string(b)), nil, nil
}
