package litellm

import (
	"context"
	"errors"
	"time"

	"github.com/rhuss/runbox/pkg/provider"
	"github.com/rhuss/runbox/pkg/provider/openaicompat"
)

// Provider talks to a LiteLLM proxy. Requests go through the shared
// openaicompat.Client with model names rewritten by Config.ModelMapping.
type Provider struct {
	cfg    Config
	client *openaicompat.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider. BaseURL is required.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("litellm: BaseURL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	client := openaicompat.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if len(cfg.ModelMapping) > 0 {
		mapping := cfg.ModelMapping
		client.ModelMapper = func(model string) string {
			if mapped, ok := mapping[model]; ok {
				return mapped
			}
			return model
		}
	}
	return &Provider{cfg: cfg, client: client}, nil
}

func (p *Provider) Name() string { return "litellm" }

// Complete performs a non-streaming Chat Completions call.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	return p.client.Complete(ctx, req)
}

// ListModels returns the models the proxy routes to.
func (p *Provider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return p.client.ListModels(ctx)
}

func (p *Provider) Close() error {
	return p.client.Close()
}
