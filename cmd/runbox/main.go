// Command runbox executes untrusted code in a sandbox, diagnoses failures
// and optionally repairs them with a code-generation backend.
//
// Configuration is read from a YAML file (--config, RUNBOX_CONFIG,
// ./config.yaml or /etc/runbox/config.yaml) and RUNBOX_* environment
// variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	stop()

	var exit *exitError
	switch {
	case err == nil:
	case errors.As(err, &exit):
		os.Exit(exit.code)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// exitError carries the exit status of executed code out of a command
// without printing anything further.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
