package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/rhuss/runbox/pkg/language"
	"github.com/rhuss/runbox/pkg/provider/openaicompat"
)

const mockModel = "mock-coder"

// attemptPattern matches the failing snippet quoted in a correction prompt.
var attemptPattern = regexp.MustCompile("(?s)the following (\\w+) code:\\s*```\\w*\\n(.*?)\\n```")

var fixedSnippets = map[string]string{
	language.Python:     `print("fixed")`,
	language.Bash:       `echo fixed`,
	language.JavaScript: `console.log("fixed")`,
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req openaicompat.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Stream {
		writeError(w, http.StatusBadRequest, "streaming is not supported")
		return
	}

	model := req.Model
	if model == "" {
		model = mockModel
	}
	text := reply(lastUserMessage(req.Messages))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(openaicompat.ChatCompletionResponse{
		ID:     "chatcmpl-mock",
		Object: "chat.completion",
		Model:  model,
		Choices: []openaicompat.ChatChoice{{
			Message:      openaicompat.ChatMessage{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
		Usage: &openaicompat.ChatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	})
}

// reply builds the assistant answer for a correction or search prompt.
func reply(prompt string) string {
	m := attemptPattern.FindStringSubmatch(prompt)
	if m == nil {
		return "Send me code that failed and the error it produced."
	}
	lang, code := m[1], m[2]

	searched := strings.Contains(prompt, "Here are the search results")
	switch {
	case strings.Contains(code, "no_fix"):
		return "I am not sure how to fix this error."
	case strings.Contains(code, "needs_search") && !searched:
		return fmt.Sprintf("I need more context.\nSEARCH_WEB: \"how to fix %s error\"\nFOCUS_MODE: webSearch", lang)
	}

	fixed := code
	if spec, err := language.Resolve(lang); err == nil {
		if snippet, ok := fixedSnippets[spec.Name]; ok {
			fixed = snippet
		}
	}
	return fmt.Sprintf("Here is the corrected code:\n\n```%s\n%s\n```\n", lang, fixed)
}

func lastUserMessage(msgs []openaicompat.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			if s, ok := msgs[i].Content.(string); ok {
				return s
			}
		}
	}
	return ""
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": mockModel, "object": "model", "owned_by": "runbox-mock"},
		},
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var body openaicompat.ChatErrorResponse
	body.Error.Message = msg
	body.Error.Type = "invalid_request_error"
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
