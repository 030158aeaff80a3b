package sandbox

import (
	"context"
	"errors"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/rhuss/runbox/pkg/debug"
	"github.com/rhuss/runbox/pkg/language"
)

// DefaultMemoryLimitKiB matches `ulimit -v 512000`.
const DefaultMemoryLimitKiB = 512000

// LocalBackend runs scripts as child processes of runbox, each in its own
// process group so a timeout kills everything the script spawned.
type LocalBackend struct {
	// MemoryLimitKiB caps the address space of python children. Node and
	// bash are exempt: V8 reserves far more virtual memory than this at
	// startup. Zero disables the cap.
	MemoryLimitKiB uint64

	// WaitDelay bounds how long Run waits for output pipes after the child
	// is killed, in case a grandchild still holds them open.
	WaitDelay time.Duration
}

// NewLocalBackend returns a backend with the default resource caps.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		MemoryLimitKiB: DefaultMemoryLimitKiB,
		WaitDelay:      2 * time.Second,
	}
}

func (b *LocalBackend) Name() string { return BackendLocal }

// Run executes the script with the language interpreter, working directory
// set to the workspace.
func (b *LocalBackend) Run(ctx context.Context, spec language.Spec, scriptPath, workspace string, timeout time.Duration) (Output, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(spec.Command[1:len(spec.Command):len(spec.Command)], scriptPath)
	cmd := exec.CommandContext(runCtx, spec.Command[0], args...)
	cmd.Dir = workspace
	cmd.WaitDelay = b.WaitDelay

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	isolateProcessGroup(cmd)
	debug.Log("sandbox", "spawning local process", "argv", cmd.Args, "dir", workspace, "timeout", timeout)

	if err := cmd.Start(); err != nil {
		return Output{}, err
	}

	var memBytes uint64
	if spec.Name == language.Python && b.MemoryLimitKiB > 0 {
		memBytes = b.MemoryLimitKiB * 1024
	}
	// The child runs unconstrained until this call returns. The CPU cap sits
	// one second past the wall-clock timeout so a busy loop is reported as
	// a timeout rather than a signal death.
	applyLimits(cmd.Process.Pid, uint64(math.Ceil(timeout.Seconds()))+1, memBytes)

	execErr := cmd.Wait()

	out := Output{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}
	if execErr == nil {
		return out, nil
	}

	// Check timeout first (context deadline takes precedence over exit error).
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		out.TimedOut = true
		out.ExitCode = 1
	case ctx.Err() != nil:
		out.ExitCode = 1
		out.Stderr += "execution cancelled: " + ctx.Err().Error()
	default:
		var exitErr *exec.ExitError
		if !errors.As(execErr, &exitErr) {
			return out, execErr
		}
		out.ExitCode = exitErr.ExitCode()
		if out.ExitCode < 0 {
			// Killed by a signal, typically SIGXCPU or SIGKILL from a limit.
			out.ExitCode = 1
		}
	}
	return out, nil
}
