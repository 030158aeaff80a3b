package sandbox

import (
	"context"
	"time"

	"github.com/rhuss/runbox/pkg/language"
)

// Backend names.
const (
	BackendLocal     = "local"
	BackendContainer = "container"
)

// Output is what a backend captured from one run.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Backend runs a script file that already exists inside workspace.
// Implementations must kill the child when timeout elapses or ctx is
// cancelled. A non-nil error means the process could not be started.
type Backend interface {
	Name() string
	Run(ctx context.Context, spec language.Spec, scriptPath, workspace string, timeout time.Duration) (Output, error)
}
