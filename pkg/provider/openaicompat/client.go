package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/runbox/pkg/provider"
)

// Client performs HTTP requests against an OpenAI-compatible Chat
// Completions backend. It implements provider.Provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	// ModelMapper is an optional function that transforms the model name
	// before sending it to the backend. If nil, the model name is used as-is.
	ModelMapper func(string) string
}

var _ provider.Provider = (*Client)(nil)

// NewClient creates a new Client for an OpenAI-compatible backend.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	// Normalize: remove trailing slash from base URL.
	baseURL = strings.TrimRight(baseURL, "/")

	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "openai-compat" }

// Complete performs non-streaming inference against the Chat Completions endpoint.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req
	if c.ModelMapper != nil {
		reqCopy.Model = c.ModelMapper(reqCopy.Model)
	}

	body, err := json.Marshal(TranslateToChat(&reqCopy))
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, statusError(httpResp)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, &provider.GenerationError{Failure: provider.FailureMalformed, Status: httpResp.StatusCode, Err: err}
	}
	return TranslateResponse(&chatResp), nil
}

// ListModels returns available models from the backend by querying
// the /v1/models endpoint.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.authorize(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, statusError(httpResp)
	}

	var modelsResp ChatModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&modelsResp); err != nil {
		return nil, &provider.GenerationError{Failure: provider.FailureMalformed, Status: httpResp.StatusCode, Err: err}
	}

	models := make([]provider.ModelInfo, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		models = append(models, provider.ModelInfo{ID: m.ID, Object: m.Object, OwnedBy: m.OwnedBy})
	}
	return models, nil
}

func (c *Client) authorize(r *http.Request) {
	if c.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
