// Package sandbox runs untrusted snippets in a workspace directory and
// always answers with a result triple: stdout, stderr and exit code.
//
// A Sandbox resolves the language, scans the code against a denylist,
// writes it to a uniquely named scratch file, and hands the file to a
// Backend. The local backend runs the interpreter as a child process with
// coarse rlimits; the container backend runs it under `docker run` with
// networking and capabilities removed. The backend is chosen once, from the
// configured security level and whether a container runtime is present.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/runbox/pkg/api"
	"github.com/rhuss/runbox/pkg/debug"
	"github.com/rhuss/runbox/pkg/language"
	"github.com/rhuss/runbox/pkg/observability"
)

// DefaultTimeout is the wall-clock limit applied to every run.
const DefaultTimeout = 30 * time.Second

// Config holds sandbox settings.
type Config struct {
	// Workspace is the directory scripts run in. Created if missing.
	Workspace string

	// SecurityLevel selects the backend (default: medium).
	SecurityLevel api.SecurityLevel

	// Timeout is the per-run wall-clock limit (default: 30s).
	Timeout time.Duration

	// SkipScanInContainer disables the denylist scan when the container
	// backend is active.
	SkipScanInContainer bool

	// Container configures the container backend.
	Container ContainerConfig
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sandbox) { s.logger = l }
}

// WithScanner replaces the denylist scanner.
func WithScanner(sc Scanner) Option {
	return func(s *Sandbox) { s.scanner = sc }
}

// WithBackend forces a backend regardless of the security level.
func WithBackend(b Backend) Option {
	return func(s *Sandbox) { s.backend = b }
}

// WithRegistry replaces the language registry.
func WithRegistry(r *language.Registry) Option {
	return func(s *Sandbox) { s.registry = r }
}

// WithDockerDetector replaces the container runtime check.
func WithDockerDetector(detect func(context.Context) bool) Option {
	return func(s *Sandbox) { s.detectDocker = detect }
}

// Sandbox executes code. It is safe for concurrent use: every run writes
// its own scratch file.
type Sandbox struct {
	workspace    string
	requested    api.SecurityLevel
	level        api.SecurityLevel
	downgraded   bool
	timeout      time.Duration
	scanner      Scanner
	scanDisabled bool
	backend      Backend
	registry     *language.Registry
	detectDocker func(context.Context) bool
	logger       *slog.Logger
}

// New creates a Sandbox, creating the workspace and probing for a
// container runtime when the high security level is requested.
func New(ctx context.Context, cfg Config, opts ...Option) (*Sandbox, error) {
	if cfg.Workspace == "" {
		return nil, fmt.Errorf("workspace directory is required")
	}
	if cfg.SecurityLevel == "" {
		cfg.SecurityLevel = api.SecurityMedium
	}
	if _, ok := api.ParseSecurityLevel(string(cfg.SecurityLevel)); !ok {
		return nil, fmt.Errorf("unknown security level %q", cfg.SecurityLevel)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	abs, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	s := &Sandbox{
		workspace:    abs,
		requested:    cfg.SecurityLevel,
		timeout:      cfg.Timeout,
		scanner:      NewDenylistScanner(),
		registry:     language.Default(),
		detectDocker: DetectDocker,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	dockerAvailable := false
	if cfg.SecurityLevel == api.SecurityHigh {
		dockerAvailable = s.detectDocker(ctx)
	}
	s.level, s.downgraded = SelectLevel(cfg.SecurityLevel, dockerAvailable)
	if s.downgraded {
		s.logger.Warn("high security level requested but docker is not available, falling back to medium")
		observability.BackendDowngradesTotal.Inc()
	}

	if s.backend == nil {
		if s.level == api.SecurityHigh {
			s.backend = NewContainerBackend(cfg.Container)
		} else {
			s.backend = NewLocalBackend()
		}
	}
	s.scanDisabled = s.backend.Name() == BackendContainer && cfg.SkipScanInContainer

	s.logger.Info("sandbox initialized",
		"security_level", s.level,
		"backend", s.backend.Name(),
		"workspace", s.workspace,
		"timeout", s.timeout,
		"scan", !s.scanDisabled,
	)
	return s, nil
}

// SelectLevel returns the effective security level. High without a
// container runtime falls back to medium and reports downgraded.
func SelectLevel(requested api.SecurityLevel, dockerAvailable bool) (level api.SecurityLevel, downgraded bool) {
	if requested == api.SecurityHigh && !dockerAvailable {
		return api.SecurityMedium, true
	}
	return requested, false
}

// Execute runs code in the given language. It never fails: unsupported
// languages, denylist hits, timeouts and spawn errors all come back as a
// result with a non-zero exit code and an explanatory stderr.
func (s *Sandbox) Execute(ctx context.Context, code, lang string) (res api.ExecutionResult) {
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
	}()

	spec, err := s.registry.Resolve(lang)
	if err != nil {
		name := strings.ToLower(strings.TrimSpace(lang))
		observability.ExecutionsTotal.WithLabelValues("unsupported", s.backend.Name(), "unsupported").Inc()
		return api.ExecutionResult{
			Stderr:   "Unsupported language: " + name,
			ExitCode: 1,
			Language: name,
			Backend:  s.backend.Name(),
		}
	}

	res = api.ExecutionResult{Language: spec.Name, Backend: s.backend.Name()}

	if !s.scanDisabled {
		if v := s.scanner.Scan(spec.Name, code); v != nil {
			s.logger.Warn("script rejected by denylist", "language", spec.Name, "entry", v.Entry)
			observability.DenylistBlocksTotal.WithLabelValues(spec.Name).Inc()
			observability.ExecutionsTotal.WithLabelValues(spec.Name, s.backend.Name(), "blocked").Inc()
			res.Stderr = v.Message()
			res.ExitCode = 1
			return res
		}
	}

	res = s.run(ctx, spec, code, res)
	duration := time.Since(start)

	status := "ok"
	switch {
	case strings.HasPrefix(res.Stderr, "Execution timed out"):
		status = "timeout"
	case !res.Success():
		status = "error"
	}
	observability.ExecutionsTotal.WithLabelValues(spec.Name, s.backend.Name(), status).Inc()
	observability.ExecutionDuration.WithLabelValues(spec.Name, s.backend.Name()).Observe(duration.Seconds())

	s.logger.Info("execute complete",
		"language", spec.Name,
		"backend", s.backend.Name(),
		"status", status,
		"exit_code", res.ExitCode,
		"duration_ms", duration.Milliseconds(),
		"code", debug.Truncate(code, 120),
	)
	return res
}

func (s *Sandbox) run(ctx context.Context, spec language.Spec, code string, res api.ExecutionResult) api.ExecutionResult {
	if err := os.MkdirAll(s.workspace, 0o755); err != nil {
		res.Stderr = err.Error()
		res.ExitCode = 1
		return res
	}

	// World-readable so the container user can read the bind mount.
	mode := os.FileMode(0o644)
	if spec.Executable {
		mode = 0o755
	}
	path := filepath.Join(s.workspace, api.NewScratchName(spec.Extension))
	if err := os.WriteFile(path, []byte(code), mode); err != nil {
		res.Stderr = err.Error()
		res.ExitCode = 1
		return res
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing scratch file failed", "path", path, "error", err)
		}
	}()
	// WriteFile is subject to the umask.
	if err := os.Chmod(path, mode); err != nil {
		res.Stderr = err.Error()
		res.ExitCode = 1
		return res
	}

	out, err := s.backend.Run(ctx, spec, path, s.workspace, s.timeout)
	if err != nil {
		res.Stderr = err.Error()
		res.ExitCode = 1
		return res
	}

	res.Stdout = out.Stdout
	res.Stderr = out.Stderr
	res.ExitCode = out.ExitCode
	if out.TimedOut {
		res.Stderr = "Execution timed out after " + formatSeconds(s.timeout) + " seconds"
		res.ExitCode = 1
	}
	return res
}

// Info describes the effective sandbox configuration.
type Info struct {
	SecurityLevel  api.SecurityLevel `json:"security_level"`
	RequestedLevel api.SecurityLevel `json:"requested_security_level"`
	Downgraded     bool              `json:"downgraded"`
	Backend        string            `json:"backend"`
	Workspace      string            `json:"workspace"`
	Timeout        string            `json:"timeout"`
	ScanEnabled    bool              `json:"scan_enabled"`
	Languages      []string          `json:"languages"`
}

// Info returns the effective configuration.
func (s *Sandbox) Info() Info {
	return Info{
		SecurityLevel:  s.level,
		RequestedLevel: s.requested,
		Downgraded:     s.downgraded,
		Backend:        s.backend.Name(),
		Workspace:      s.workspace,
		Timeout:        s.timeout.String(),
		ScanEnabled:    !s.scanDisabled,
		Languages:      s.registry.Supported(),
	}
}

// Workspace returns the absolute workspace directory.
func (s *Sandbox) Workspace() string { return s.workspace }

// Timeout returns the per-run wall-clock limit.
func (s *Sandbox) Timeout() time.Duration { return s.timeout }

func formatSeconds(d time.Duration) string {
	if d%time.Second == 0 {
		return strconv.FormatInt(int64(d/time.Second), 10)
	}
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
