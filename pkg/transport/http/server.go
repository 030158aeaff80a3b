package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/runbox/pkg/observability"
	"github.com/rhuss/runbox/pkg/transport"
)

// Server wraps an http.Server with the transport adapter and manages
// the full lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Adapter         Config
	Logger          *slog.Logger

	// Middleware runs after the default recovery, request ID, access log
	// and metrics middleware. Authentication goes here.
	Middleware []transport.Middleware

	// Subject names the caller in access logs.
	Subject transport.SubjectFunc

	handlers []mount
}

type mount struct {
	pattern string
	handler http.Handler
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Adapter:         DefaultConfig(),
		Logger:          slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*ServerConfig)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(c *ServerConfig) { c.Addr = addr }
}

// WithTimeouts sets the read and write timeouts of the http.Server.
// Zero leaves the default in place.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(c *ServerConfig) {
		if read > 0 {
			c.ReadTimeout = read
		}
		if write > 0 {
			c.WriteTimeout = write
		}
	}
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(c *ServerConfig) { c.Adapter.MaxBodySize = n }
}

// WithAdapterConfig replaces the adapter configuration.
func WithAdapterConfig(cfg Config) ServerOption {
	return func(c *ServerConfig) { c.Adapter = cfg }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(c *ServerConfig) { c.ShutdownTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(c *ServerConfig) { c.Logger = l }
}

// WithMiddleware appends middleware after the defaults.
func WithMiddleware(mw ...transport.Middleware) ServerOption {
	return func(c *ServerConfig) { c.Middleware = append(c.Middleware, mw...) }
}

// WithSubject sets how access logs name the caller.
func WithSubject(f transport.SubjectFunc) ServerOption {
	return func(c *ServerConfig) { c.Subject = f }
}

// WithHandler mounts an extra handler such as /metrics or /mcp.
func WithHandler(pattern string, h http.Handler) ServerOption {
	return func(c *ServerConfig) { c.handlers = append(c.handlers, mount{pattern, h}) }
}

// NewServer creates a new transport server for svc.
// Default middleware (recovery, request ID, access log, metrics) is applied
// automatically, followed by any middleware given with WithMiddleware.
func NewServer(svc Services, opts ...ServerOption) *Server {
	cfg := DefaultServerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mw := []transport.Middleware{
		transport.Recovery(cfg.Logger),
		transport.RequestID(),
		transport.AccessLog(cfg.Logger, cfg.Subject),
		observability.MetricsMiddleware,
	}
	mw = append(mw, cfg.Middleware...)

	adapter := NewAdapter(svc, cfg.Adapter, mw...)
	for _, m := range cfg.handlers {
		adapter.Handle(m.pattern, m.handler)
	}

	return &Server{
		config:  cfg,
		logger:  cfg.Logger,
		adapter: adapter,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           adapter.Handler(),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received. It then gracefully shuts down,
// waiting for in-flight requests to complete within the configured timeout.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.Run(ctx)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. When serving stops on its own, the shutdown watcher exits too.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
