// Package app assembles runbox from its configuration: the sandbox, the
// error classifier, the task executor, execution history, web search, the
// code generator and the correction loop. The serve, exec, fix and mcp
// commands all start from an App.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/runbox/pkg/api"
	"github.com/rhuss/runbox/pkg/auth"
	"github.com/rhuss/runbox/pkg/auth/apikey"
	"github.com/rhuss/runbox/pkg/auth/jwt"
	"github.com/rhuss/runbox/pkg/auth/noop"
	"github.com/rhuss/runbox/pkg/classifier"
	"github.com/rhuss/runbox/pkg/config"
	"github.com/rhuss/runbox/pkg/correction"
	"github.com/rhuss/runbox/pkg/debug"
	"github.com/rhuss/runbox/pkg/history"
	"github.com/rhuss/runbox/pkg/history/memory"
	"github.com/rhuss/runbox/pkg/history/postgres"
	"github.com/rhuss/runbox/pkg/language"
	"github.com/rhuss/runbox/pkg/mcpserver"
	"github.com/rhuss/runbox/pkg/provider"
	"github.com/rhuss/runbox/pkg/provider/litellm"
	"github.com/rhuss/runbox/pkg/provider/openaicompat"
	"github.com/rhuss/runbox/pkg/sandbox"
	"github.com/rhuss/runbox/pkg/search"
	"github.com/rhuss/runbox/pkg/tasks"
	"github.com/rhuss/runbox/pkg/transport"
	transporthttp "github.com/rhuss/runbox/pkg/transport/http"
)

// App holds the wired components. Search, Generator and Loop are nil when
// their backends are not configured.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Sandbox    *sandbox.Sandbox
	Classifier *classifier.Classifier
	Tasks      *tasks.Executor
	History    history.Store
	Search     *search.Client
	Generator  *provider.Generator
	Loop       *correction.Loop
}

// Option adjusts how New builds components. Tests use it to swap the
// sandbox backend.
type Option func(*options)

type options struct {
	sandboxOpts []sandbox.Option
}

// WithSandboxOptions passes extra options to sandbox.New.
func WithSandboxOptions(opts ...sandbox.Option) Option {
	return func(o *options) { o.sandboxOpts = append(o.sandboxOpts, opts...) }
}

// New builds every component cfg enables. On error, anything already
// opened is closed again.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	level, _ := api.ParseSecurityLevel(cfg.Sandbox.SecurityLevel)
	sbOpts := []sandbox.Option{sandbox.WithLogger(logger.With("component", "sandbox"))}
	if len(cfg.Sandbox.Images) > 0 {
		sbOpts = append(sbOpts, sandbox.WithRegistry(language.Default().WithImages(cfg.Sandbox.Images)))
	}
	sbOpts = append(sbOpts, o.sandboxOpts...)

	a.Sandbox, err = sandbox.New(ctx, sandbox.Config{
		Workspace:           cfg.Sandbox.WorkspaceDir,
		SecurityLevel:       level,
		Timeout:             cfg.Sandbox.Timeout,
		SkipScanInContainer: !cfg.Sandbox.ScanInContainer,
		Container: sandbox.ContainerConfig{
			Runtime: cfg.Sandbox.Runtime,
			Memory:  cfg.Sandbox.Memory,
			CPUs:    cfg.Sandbox.CPUs,
			User:    cfg.Sandbox.User,
		},
	}, sbOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}

	a.Classifier = classifier.New(
		classifier.WithHistoryLimit(cfg.Classifier.HistoryLimit),
		classifier.WithLogger(logger.With("component", "classifier")),
	)

	a.History, err = newHistory(ctx, cfg.History, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Search.Enabled {
		a.Search, err = search.New(search.Config{
			Backend:          cfg.Search.Backend,
			URL:              cfg.Search.URL,
			MaxResults:       cfg.Search.MaxResults,
			FocusMode:        cfg.Search.FocusMode,
			OptimizationMode: cfg.Search.OptimizationMode,
		}, logger.With("component", "search"))
		if err != nil {
			return nil, fmt.Errorf("creating search client: %w", err)
		}
	}

	if cfg.Engine.BackendURL != "" {
		backend, err := newProvider(cfg.Engine)
		if err != nil {
			return nil, err
		}
		a.Generator = provider.NewGenerator(backend, provider.GeneratorConfig{
			Model:       cfg.Engine.Model,
			Temperature: cfg.Engine.Temperature,
			MaxTokens:   cfg.Engine.MaxTokens,
		}, logger.With("component", "generator"))

		loopOpts := []correction.Option{
			correction.WithMaxRetries(cfg.Sandbox.MaxRetries),
			correction.WithDiagnoser(a.Classifier),
			correction.WithHistory(a.History),
			correction.WithFocusMode(cfg.Search.FocusMode),
			correction.WithLogger(logger.With("component", "correction")),
		}
		if a.Search != nil {
			loopOpts = append(loopOpts, correction.WithSearcher(a.Search))
		}
		a.Loop = correction.New(a.Sandbox, a.Generator, loopOpts...)
	}

	a.Tasks = tasks.New(a.Sandbox, a.Classifier,
		tasks.WithLogger(logger.With("component", "tasks")),
		tasks.WithMaxConcurrent(cfg.Tasks.MaxConcurrent),
		tasks.WithCleanup(cfg.Tasks.CleanupInterval, cfg.Tasks.CleanupMaxAge),
	)

	info := a.Sandbox.Info()
	logger.Info("runbox ready",
		"security_level", info.SecurityLevel,
		"backend", info.Backend,
		"workspace", info.Workspace,
		"history", cfg.History.Type,
		"search", a.Search != nil,
		"correction", a.Loop != nil,
	)
	return a, nil
}

func newProvider(cfg config.EngineConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case "litellm":
		p, err := litellm.New(litellm.Config{
			BaseURL:      cfg.BackendURL,
			APIKey:       cfg.APIKey,
			Timeout:      cfg.Timeout,
			ModelMapping: cfg.ModelMapping,
		})
		if err != nil {
			return nil, fmt.Errorf("creating litellm provider: %w", err)
		}
		return p, nil
	case "", "openai-compat":
		return openaicompat.NewClient(cfg.BackendURL, cfg.APIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Provider)
	}
}

func newHistory(ctx context.Context, cfg config.HistoryConfig, logger *slog.Logger) (history.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		}, logger.With("component", "history"))
		if err != nil {
			return nil, fmt.Errorf("creating postgres history: %w", err)
		}
		return store, nil
	default:
		return history.Nop{}, nil
	}
}

// Close stops the task executor and releases the history store and the
// generator backend.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Tasks != nil {
		errs = append(errs, a.Tasks.Shutdown(ctx))
	}
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	if a.Generator != nil {
		errs = append(errs, a.Generator.Close())
	}
	return errors.Join(errs...)
}

// MCPServer exposes the app's components as MCP tools and resources.
func (a *App) MCPServer(version string) *mcpserver.Server {
	opts := []mcpserver.Option{
		mcpserver.WithTasks(a.Tasks),
		mcpserver.WithHistory(a.History),
		mcpserver.WithWorkspace(a.Sandbox.Workspace(), func() any { return a.Sandbox.Info() }),
		mcpserver.WithLogger(a.Logger.With("component", "mcp")),
		mcpserver.WithImplementation(mcpserver.DefaultName, version),
	}
	if a.Search != nil {
		opts = append(opts, mcpserver.WithSearcher(a.Search, a.Config.Search.FocusMode))
	}
	return mcpserver.New(a.Sandbox, opts...)
}

// HTTPServer builds the API server with authentication, metrics and the
// MCP endpoint as configured.
func (a *App) HTTPServer(version string) (*transporthttp.Server, error) {
	chain, err := NewAuthChain(a.Config.Auth, a.Logger)
	if err != nil {
		return nil, err
	}

	bypass := []string{"/healthz"}
	var limiter auth.RateLimiter
	if a.Config.Auth.RateLimit > 0 {
		limiter = auth.NewWindowLimiter(a.Config.Auth.RateLimit)
	}

	svc := transporthttp.Services{
		Executor:   a.Sandbox,
		Classifier: a.Classifier,
		Tasks:      a.Tasks,
		History:    a.History,
		Health:     func() any { return a.Sandbox.Info() },
	}
	if a.Loop != nil {
		svc.Corrector = a.Loop
	}

	adapterCfg := transporthttp.DefaultConfig()
	adapterCfg.CleanupMaxAge = a.Config.Tasks.CleanupMaxAge

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf(":%d", a.Config.Server.Port)),
		transporthttp.WithTimeouts(a.Config.Server.ReadTimeout, a.Config.Server.WriteTimeout),
		transporthttp.WithAdapterConfig(adapterCfg),
		transporthttp.WithLogger(a.Logger),
		transporthttp.WithSubject(func(r *http.Request) string { return auth.SubjectFromContext(r.Context()) }),
	}

	if m := a.Config.Observability.Metrics; m.Enabled {
		opts = append(opts, transporthttp.WithHandler("GET "+m.Path, promhttp.Handler()))
		bypass = append(bypass, m.Path)
	}
	if a.Config.MCP.Enabled {
		opts = append(opts, transporthttp.WithHandler(a.Config.MCP.Path, a.MCPServer(version).Handler()))
	}

	opts = append(opts, transporthttp.WithMiddleware(
		transport.Middleware(auth.Middleware(chain, limiter, bypass, a.Logger.With("component", "auth"))),
	))
	return transporthttp.NewServer(svc, opts...), nil
}

// NewAuthChain builds the authenticator chain for cfg.Type.
func NewAuthChain(cfg config.AuthConfig, logger *slog.Logger) (*auth.AuthChain, error) {
	switch cfg.Type {
	case "", "none":
		return &auth.AuthChain{
			Authenticators:  []auth.Authenticator{noop.Authenticator{}},
			DefaultDecision: auth.Yes,
		}, nil
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys = append(keys, apikey.Key{Key: k.Key, Subject: k.Subject})
		}
		return &auth.AuthChain{
			Authenticators:  []auth.Authenticator{apikey.New(keys)},
			DefaultDecision: auth.No,
		}, nil
	case "jwt":
		authn, err := jwt.New(jwt.Config{
			Secret:   cfg.JWT.Secret,
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating jwt authenticator: %w", err)
		}
		return &auth.AuthChain{
			Authenticators:  []auth.Authenticator{authn},
			DefaultDecision: auth.No,
		}, nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}
}

// NewLogger returns a slog.Logger writing to w in the configured format
// and enables the configured debug categories. Unknown levels fall back
// to info.
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	debug.Init(cfg.Debug)
	hopts := &slog.HandlerOptions{Level: debug.ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
