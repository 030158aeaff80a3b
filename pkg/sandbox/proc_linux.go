//go:build linux

package sandbox

import (
	"log/slog"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// isolateProcessGroup starts the child in a new process group and makes
// context cancellation kill the whole group.
func isolateProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}

// applyLimits sets RLIMIT_CPU and RLIMIT_AS on a started child. Zero
// values leave the corresponding limit untouched. Failures are logged and
// otherwise ignored.
func applyLimits(pid int, cpuSeconds, addressSpaceBytes uint64) {
	if cpuSeconds > 0 {
		lim := unix.Rlimit{Cur: cpuSeconds, Max: cpuSeconds + 1}
		if err := unix.Prlimit(pid, unix.RLIMIT_CPU, &lim, nil); err != nil {
			slog.Debug("setting cpu limit failed", "pid", pid, "error", err)
		}
	}
	if addressSpaceBytes > 0 {
		lim := unix.Rlimit{Cur: addressSpaceBytes, Max: addressSpaceBytes}
		if err := unix.Prlimit(pid, unix.RLIMIT_AS, &lim, nil); err != nil {
			slog.Debug("setting address space limit failed", "pid", pid, "error", err)
		}
	}
}
