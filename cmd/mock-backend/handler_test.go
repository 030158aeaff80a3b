package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/runbox/pkg/provider/openaicompat"
)

func prompt(lang, code string) string {
	return "I tried to execute the following " + lang + " code:\n\n```" + lang + "\n" + code + "\n```\n\nBut I encountered this error:\n\n```\nboom\n```\n\n"
}

func TestReply(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"python fix", prompt("python", "prnt(1)"), "```python\nprint(\"fixed\")\n```"},
		{"alias keeps tag", prompt("sh", "ech hi"), "```sh\necho fixed\n```"},
		{"unknown language echoes code", prompt("ruby", "puts 1"), "```ruby\nputs 1\n```"},
		{"search request", prompt("bash", "needs_search"), `SEARCH_WEB: "how to fix bash error"`},
		{"after search", prompt("bash", "needs_search") + "Here are the search results:\n\nnone", "```bash\necho fixed\n```"},
		{"no code", prompt("python", "no_fix"), "not sure"},
		{"unrelated", "hello", "Send me code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reply(tt.prompt); !strings.Contains(got, tt.want) {
				t.Errorf("reply() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestChatCompletions(t *testing.T) {
	srv := httptest.NewServer(newMux())
	defer srv.Close()

	body := `{"model":"m","messages":[{"role":"system","content":"fix code"},{"role":"user","content":` +
		mustJSON(t, prompt("python", "prnt(1)")) + `}]}`
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out openaicompat.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Model != "m" || len(out.Choices) != 1 {
		t.Fatalf("response = %+v", out)
	}
	if s, _ := out.Choices[0].Message.Content.(string); !strings.Contains(s, `print("fixed")`) {
		t.Errorf("content = %v", out.Choices[0].Message.Content)
	}

	resp, err = http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body status = %d", resp.StatusCode)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
