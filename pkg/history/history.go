// Package history defines the execution-history sink used by the
// correction loop and the HTTP API. Adapters live in the memory and
// postgres subpackages.
package history

import (
	"context"

	"github.com/rhuss/runbox/pkg/api"
)

// Store persists execution records. List returns the newest records first;
// a limit of zero or less returns everything.
type Store interface {
	Record(ctx context.Context, rec api.ExecutionRecord) error
	List(ctx context.Context, limit int) ([]api.ExecutionRecord, error)
	Close() error
}

// Nop discards every record.
type Nop struct{}

var _ Store = Nop{}

// Record does nothing.
func (Nop) Record(context.Context, api.ExecutionRecord) error { return nil }

// List always returns an empty slice.
func (Nop) List(context.Context, int) ([]api.ExecutionRecord, error) {
	return []api.ExecutionRecord{}, nil
}

// Close does nothing.
func (Nop) Close() error { return nil }
