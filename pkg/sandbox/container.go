package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/runbox/pkg/debug"
	"github.com/rhuss/runbox/pkg/language"
)

// ContainerConfig holds the resource flags passed to `docker run`.
type ContainerConfig struct {
	Runtime string // default: "docker"
	Memory  string // default: "512m"
	CPUs    string // default: "1"
	User    string // default: "nobody"
}

func (c *ContainerConfig) defaults() {
	if c.Runtime == "" {
		c.Runtime = "docker"
	}
	if c.Memory == "" {
		c.Memory = "512m"
	}
	if c.CPUs == "" {
		c.CPUs = "1"
	}
	if c.User == "" {
		c.User = "nobody"
	}
}

// ContainerBackend runs each script in a throwaway container with no
// network, no capabilities and the script mounted read-only.
type ContainerBackend struct {
	cfg ContainerConfig
}

// NewContainerBackend creates a container backend. Zero fields in cfg take
// their defaults.
func NewContainerBackend(cfg ContainerConfig) *ContainerBackend {
	cfg.defaults()
	return &ContainerBackend{cfg: cfg}
}

func (b *ContainerBackend) Name() string { return BackendContainer }

// Args builds the `docker run` argument list for one script.
func (b *ContainerBackend) Args(spec language.Spec, scriptPath, containerName string) []string {
	base := filepath.Base(scriptPath)
	args := []string{
		"run",
		"--rm",
		"--network=none",
		"--memory=" + b.cfg.Memory,
		"--cpus=" + b.cfg.CPUs,
		"--user=" + b.cfg.User,
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--name", containerName,
		"-v", scriptPath + ":/app/" + base + ":ro",
		"-w", "/app",
		spec.Image,
	}
	args = append(args, spec.Command...)
	return append(args, base)
}

// Run starts the container and waits for it. On timeout the container is
// killed by name, since killing the CLI client alone leaves it running.
func (b *ContainerBackend) Run(ctx context.Context, spec language.Spec, scriptPath, workspace string, timeout time.Duration) (Output, error) {
	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		return Output{}, err
	}
	name := "runbox-" + uuid.NewString()[:12]

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.cfg.Runtime, b.Args(spec, abs, name)...)
	cmd.Dir = workspace
	cmd.WaitDelay = 2 * time.Second
	debug.Log("sandbox", "starting container", "runtime", b.cfg.Runtime, "name", name, "image", spec.Image)
	if debug.TraceEnabled("sandbox") {
		debug.Trace("sandbox", "container command", "argv", strings.Join(cmd.Args, " "))
	}

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	execErr := cmd.Run()
	out := Output{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	if execErr == nil {
		return out, nil
	}

	if runCtx.Err() != nil {
		b.kill(name)
		out.ExitCode = 1
		if ctx.Err() == nil {
			out.TimedOut = true
		} else {
			out.Stderr += "execution cancelled: " + ctx.Err().Error()
		}
		return out, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(execErr, &exitErr) {
		return out, execErr
	}
	out.ExitCode = exitErr.ExitCode()
	if out.ExitCode < 0 {
		out.ExitCode = 1
	}
	return out, nil
}

func (b *ContainerBackend) kill(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, b.cfg.Runtime, "kill", name).Run(); err != nil {
		slog.Debug("container kill failed", "container", name, "error", err)
	}
}

// DetectDocker reports whether `docker --version` succeeds within five
// seconds.
func DetectDocker(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "--version").Run() == nil
}
