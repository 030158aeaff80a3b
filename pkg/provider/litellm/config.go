package litellm

import "time"

// Config holds the LiteLLM proxy settings.
type Config struct {
	// BaseURL is the proxy URL, e.g. "http://localhost:4000".
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds each HTTP request. Defaults to 120s.
	Timeout time.Duration

	// ModelMapping maps configured model names to LiteLLM routes, e.g.
	// {"coder": "ollama/qwen2.5-coder"}. Unmapped names pass through.
	ModelMapping map[string]string
}
