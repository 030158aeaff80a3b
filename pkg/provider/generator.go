package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rhuss/runbox/pkg/debug"
	"github.com/rhuss/runbox/pkg/observability"
)

// ErrEmptyResponse is returned when the backend produced no text.
var ErrEmptyResponse = errors.New("backend returned an empty response")

// DefaultSystemPrompt frames the model as a code assistant working in the
// sandbox workspace.
const DefaultSystemPrompt = `You are an AI assistant operating within a dedicated workspace.
Your goal is to help the user by generating Bash commands or Python code snippets.
If you need to run code, generate the complete code block needed for the immediate step.
If you can answer directly without code, do so.
Always output code clearly marked within markdown code blocks (e.g., ` + "```bash ... ``` or ```python ... ```" + `).
Remember that all code you generate will be executed in a specific workspace directory.

If you lack specific information (like the correct command-line arguments for a tool, current installation instructions for a package, or how to fix a specific error code), you should explicitly state your need for information and request a web search using the format:
SEARCH_WEB: "your search query here"`

// GeneratorConfig holds the per-request settings of a Generator.
type GeneratorConfig struct {
	Model        string
	SystemPrompt string // default: DefaultSystemPrompt
	Temperature  *float64
	MaxTokens    *int
}

// Generator turns one prompt into one completion. It satisfies
// correction.Generator.
type Generator struct {
	provider Provider
	cfg      GeneratorConfig
	logger   *slog.Logger
}

// NewGenerator wraps p. A nil logger uses slog.Default().
func NewGenerator(p Provider, cfg GeneratorConfig, logger *slog.Logger) *Generator {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{provider: p, cfg: cfg, logger: logger}
}

// Generate sends prompt as the user turn after the system prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	req := &Request{
		Model: g.cfg.Model,
		Messages: []Message{
			{Role: RoleSystem, Content: g.cfg.SystemPrompt},
			{Role: RoleUser, Content: prompt},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}

	debug.Trace("generator", "completion request", "model", g.cfg.Model, "prompt", prompt)
	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		status := "error"
		var ge *GenerationError
		if errors.As(err, &ge) {
			status = string(ge.Failure)
		}
		observability.ProviderRequestsTotal.WithLabelValues(g.cfg.Model, status).Inc()
		return "", fmt.Errorf("%s completion: %w", g.provider.Name(), err)
	}
	if resp.Content == "" {
		observability.ProviderRequestsTotal.WithLabelValues(g.cfg.Model, "empty").Inc()
		return "", ErrEmptyResponse
	}
	observability.ProviderRequestsTotal.WithLabelValues(g.cfg.Model, "ok").Inc()
	g.logger.Debug("completion received",
		"provider", g.provider.Name(),
		"model", resp.Model,
		"finish_reason", resp.FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
	)
	debug.Trace("generator", "completion content", "content", debug.Truncate(resp.Content, 4096))
	return resp.Content, nil
}

// Close releases the underlying provider.
func (g *Generator) Close() error { return g.provider.Close() }
