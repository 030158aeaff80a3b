//go:build !linux

package sandbox

import "os/exec"

// isolateProcessGroup keeps the default cancel behavior (kill the child).
func isolateProcessGroup(*exec.Cmd) {}

// applyLimits is a no-op where prlimit(2) is unavailable.
func applyLimits(int, uint64, uint64) {}
