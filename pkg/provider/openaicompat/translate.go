package openaicompat

import (
	"strings"

	"github.com/rhuss/runbox/pkg/provider"
)

// TranslateToChat converts a provider request into the Chat Completions
// wire format. N is always 1.
func TranslateToChat(req *provider.Request) *ChatCompletionRequest {
	msgs := make([]ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return &ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		N:           1,
	}
}

// TranslateResponse converts a ChatCompletionResponse into a provider
// response. Only choices[0] is used.
func TranslateResponse(resp *ChatCompletionResponse) *provider.Response {
	out := &provider.Response{Model: resp.Model}
	if resp.Usage != nil {
		out.Usage = provider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.FinishReason = choice.FinishReason
	out.Content = ExtractContentString(choice.Message.Content)
	return out
}

// ExtractContentString flattens message content. Strings pass through;
// arrays of {"type":"text","text":...} parts are concatenated.
func ExtractContentString(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, part := range v {
			m, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				b.WriteString(text)
			}
		}
		return b.String()
	default:
		return ""
	}
}
