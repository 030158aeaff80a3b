package provider

import (
	"context"
)

// Provider abstracts an LLM inference backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai-compat").
	Name() string

	// Complete performs non-streaming inference.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// ListModels returns available models from the backend.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
