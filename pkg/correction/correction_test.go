package correction

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"pgregory.net/rapid"

	"github.com/rhuss/runbox/pkg/api"
	"github.com/rhuss/runbox/pkg/classifier"
	"github.com/rhuss/runbox/pkg/observability"
)

type call struct{ code, lang string }

// scriptedExecutor returns results in order, repeating the last one.
type scriptedExecutor struct {
	results []api.ExecutionResult
	calls   []call
}

func (e *scriptedExecutor) Execute(_ context.Context, code, lang string) api.ExecutionResult {
	e.calls = append(e.calls, call{code, lang})
	i := min(len(e.calls)-1, len(e.results)-1)
	return e.results[i]
}

// scriptedGenerator returns replies in order, repeating the last one.
type scriptedGenerator struct {
	replies []string
	err     error
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	i := min(len(g.prompts)-1, len(g.replies)-1)
	return g.replies[i], nil
}

type fakeSearcher struct {
	results string
	err     error
	queries []string
	modes   []string
}

func (s *fakeSearcher) Search(_ context.Context, query, focus string) (string, error) {
	s.queries = append(s.queries, query)
	s.modes = append(s.modes, focus)
	return s.results, s.err
}

type recordingSink struct {
	mu      sync.Mutex
	records []api.ExecutionRecord
	err     error
}

func (s *recordingSink) Record(_ context.Context, rec api.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

var (
	nameErr = api.ExecutionResult{ExitCode: 1, Stderr: "NameError: name 'undefined_variable' is not defined\n"}
	ok42    = api.ExecutionResult{Stdout: "42\n"}
)

func quiet() Option { return WithLogger(slog.New(slog.DiscardHandler)) }

func TestRunSucceedsFirstTime(t *testing.T) {
	exec := &scriptedExecutor{results: []api.ExecutionResult{{Stdout: "ok\n"}}}
	gen := &scriptedGenerator{}
	sink := &recordingSink{}

	out := New(exec, gen, WithHistory(sink), quiet()).Run(context.Background(), "print('ok')", "python")

	if !out.Success || out.Reason != ReasonSuccess {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if out.Message != "Execution successful:\n\nok\n" {
		t.Errorf("Message = %q", out.Message)
	}
	if out.Attempts != 1 || len(exec.calls) != 1 {
		t.Errorf("Attempts = %d, executions = %d, want 1", out.Attempts, len(exec.calls))
	}
	if len(gen.prompts) != 0 {
		t.Errorf("generator called %d times, want 0", len(gen.prompts))
	}
	if len(sink.records) != 1 || !sink.records[0].Success || sink.records[0].Stdout != "ok\n" {
		t.Errorf("history records = %+v, want one successful record", sink.records)
	}
}

func TestRunCorrectsUndefinedName(t *testing.T) {
	exec := &scriptedExecutor{results: []api.ExecutionResult{nameErr, ok42}}
	gen := &scriptedGenerator{replies: []string{"Define it first:\n```python\nundefined_variable = 42\nprint(undefined_variable)\n```"}}
	sink := &recordingSink{}
	diag := classifier.New(classifier.WithLogger(slog.New(slog.DiscardHandler)))

	out := New(exec, gen, WithHistory(sink), WithDiagnoser(diag), quiet()).
		Run(context.Background(), "print(undefined_variable)", "python")

	if !out.Success {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if out.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", out.Attempts)
	}
	if out.FinalCode != "undefined_variable = 42\nprint(undefined_variable)" {
		t.Errorf("FinalCode = %q", out.FinalCode)
	}
	if out.Message != "Execution successful:\n\n42\n" {
		t.Errorf("Message = %q", out.Message)
	}
	if len(out.Diagnoses) != 1 || out.Diagnoses[0].Strategy != classifier.StrategyUndefinedVariable {
		t.Errorf("Diagnoses = %+v, want one undefined_variable", out.Diagnoses)
	}

	prompt := gen.prompts[0]
	for _, want := range []string{
		"I tried to execute the following python code:\n\n```python\nprint(undefined_variable)\n```",
		"But I encountered this error:\n\n```\nNameError: name 'undefined_variable' is not defined\n\n```",
		"Diagnosis (undefined_variable): The variable 'undefined_variable' is not defined.",
		`SEARCH_WEB: "your search query about the error"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("correction prompt missing %q:\n%s", want, prompt)
		}
	}

	if len(sink.records) != 2 || sink.records[0].Success || !sink.records[1].Success {
		t.Errorf("history = %+v, want failure then success", sink.records)
	}
	if len(diag.History(0)) != 1 {
		t.Errorf("classifier history = %d, want 1", len(diag.History(0)))
	}
}

func TestRunExhaustsRetries(t *testing.T) {
	exec := &scriptedExecutor{results: []api.ExecutionResult{{ExitCode: 1, Stderr: "still broken"}}}
	gen := &scriptedGenerator{replies: []string{"```python\nprint(1)\n```"}}

	out := New(exec, gen, quiet()).Run(context.Background(), "x", "python")

	if out.Success || out.Reason != ReasonExhausted {
		t.Fatalf("outcome = %+v, want exhausted", out)
	}
	if len(exec.calls) != DefaultMaxRetries+1 {
		t.Errorf("executions = %d, want %d", len(exec.calls), DefaultMaxRetries+1)
	}
	if len(gen.prompts) != DefaultMaxRetries {
		t.Errorf("generator calls = %d, want %d", len(gen.prompts), DefaultMaxRetries)
	}
	want := "I've tried 3 times, but I'm still encountering errors:\n\nstill broken\n\nPlease provide more guidance."
	if out.Message != want {
		t.Errorf("Message = %q, want %q", out.Message, want)
	}
}

func TestRunZeroRetries(t *testing.T) {
	exec := &scriptedExecutor{results: []api.ExecutionResult{nameErr}}
	gen := &scriptedGenerator{}

	out := New(exec, gen, WithMaxRetries(0), quiet()).Run(context.Background(), "x", "python")

	if len(exec.calls) != 1 || len(gen.prompts) != 0 {
		t.Errorf("executions = %d, generator calls = %d, want 1 and 0", len(exec.calls), len(gen.prompts))
	}
	if !strings.HasPrefix(out.Message, "I've tried 1 times") {
		t.Errorf("Message = %q", out.Message)
	}
}

func TestRunStopsWithoutUsableCode(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantReason string
		wantMsg    string
	}{
		{
			name:       "no blocks",
			reply:      "I am not sure how to fix this.",
			wantReason: ReasonNoCode,
			wantMsg:    "I couldn't generate a corrected version of the code. Here's the error I encountered:\n\n" + nameErr.Stderr,
		},
		{
			name:       "wrong language",
			reply:      "```javascript\nconsole.log(42)\n```",
			wantReason: ReasonNoMatchingCode,
			wantMsg:    "I couldn't generate a corrected version of the code in python. Here's the error I encountered:\n\n" + nameErr.Stderr,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &scriptedExecutor{results: []api.ExecutionResult{nameErr}}
			gen := &scriptedGenerator{replies: []string{tt.reply}}

			out := New(exec, gen, quiet()).Run(context.Background(), "print(undefined_variable)", "python")

			if out.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", out.Reason, tt.wantReason)
			}
			if out.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", out.Message, tt.wantMsg)
			}
			if len(exec.calls) != 1 {
				t.Errorf("executions = %d, want 1", len(exec.calls))
			}
		})
	}
}

func TestRunAcceptsLanguageAlias(t *testing.T) {
	exec := &scriptedExecutor{results: []api.ExecutionResult{nameErr, ok42}}
	gen := &scriptedGenerator{replies: []string{"```js\nconsole.log(1)\n```\n```py\nprint(42)\n```"}}

	out := New(exec, gen, quiet()).Run(context.Background(), "print(x)", "python")

	if !out.Success {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if exec.calls[1] != (call{"print(42)", "py"}) {
		t.Errorf("second execution = %+v, want py block", exec.calls[1])
	}
}

func TestRunWithSearch(t *testing.T) {
	exec := &scriptedExecutor{results: []api.ExecutionResult{nameErr, ok42}}
	gen := &scriptedGenerator{replies: []string{
		`I need more context. SEARCH_WEB: "python nameerror fix" FOCUS_MODE: academicSearch`,
		"```python\nprint(42)\n```",
	}}
	searcher := &fakeSearcher{results: "1. Define variables before use"}
	sink := &recordingSink{}

	out := New(exec, gen, WithSearcher(searcher), WithHistory(sink), quiet()).
		Run(context.Background(), "print(undefined_variable)", "python")

	if !out.Success {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if len(searcher.queries) != 1 || searcher.queries[0] != "python nameerror fix" || searcher.modes[0] != "academicSearch" {
		t.Errorf("search calls = %v %v", searcher.queries, searcher.modes)
	}
	if len(gen.prompts) != 2 {
		t.Fatalf("generator calls = %d, want 2", len(gen.prompts))
	}
	follow := gen.prompts[1]
	for _, want := range []string{
		"You requested a web search for: python nameerror fix",
		"Here are the search results:\n\n1. Define variables before use",
		"Based on these search results, please provide a corrected version of the code.",
	} {
		if !strings.Contains(follow, want) {
			t.Errorf("follow-up prompt missing %q", want)
		}
	}

	if len(sink.records) != 3 {
		t.Fatalf("history records = %d, want 3", len(sink.records))
	}
	rec := sink.records[1]
	if rec.Language != api.LanguageWebSearch || rec.Code != `SEARCH_WEB: "python nameerror fix" (Focus Mode: academicSearch)` || !rec.Success {
		t.Errorf("search record = %+v", rec)
	}
	if rec.Stdout != "1. Define variables before use" {
		t.Errorf("search record stdout = %q", rec.Stdout)
	}
}

func TestRunSearchDefaultsAndFailure(t *testing.T) {
	exec := &scriptedExecutor{results: []api.ExecutionResult{nameErr, ok42}}
	gen := &scriptedGenerator{replies: []string{`SEARCH_WEB: "q"`, "```python\nprint(42)\n```"}}
	searcher := &fakeSearcher{err: errors.New("connection refused")}
	sink := &recordingSink{}

	out := New(exec, gen, WithSearcher(searcher), WithHistory(sink), WithFocusMode("codeSearch"), quiet()).
		Run(context.Background(), "x", "python")

	if !out.Success {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if searcher.modes[0] != "codeSearch" {
		t.Errorf("focus mode = %q, want configured default", searcher.modes[0])
	}
	if !strings.Contains(gen.prompts[1], "Search failed: connection refused") {
		t.Errorf("follow-up prompt lacks search failure:\n%s", gen.prompts[1])
	}
	for _, rec := range sink.records {
		if rec.Language == api.LanguageWebSearch {
			t.Errorf("failed search was recorded: %+v", rec)
		}
	}
}

func TestRunSearchWithoutSearcher(t *testing.T) {
	exec := &scriptedExecutor{results: []api.ExecutionResult{nameErr}}
	gen := &scriptedGenerator{replies: []string{`SEARCH_WEB: "q"`}}

	out := New(exec, gen, quiet()).Run(context.Background(), "x", "python")

	if out.Reason != ReasonNoCode || len(gen.prompts) != 1 {
		t.Errorf("Reason = %q with %d prompts, want no_code after one prompt", out.Reason, len(gen.prompts))
	}
}

func TestRunGeneratorError(t *testing.T) {
	exec := &scriptedExecutor{results: []api.ExecutionResult{nameErr}}
	gen := &scriptedGenerator{err: errors.New("model unavailable")}

	out := New(exec, gen, quiet()).Run(context.Background(), "x", "python")

	if out.Success || out.Reason != ReasonGeneratorFailure {
		t.Fatalf("outcome = %+v, want generator failure", out)
	}
	if !strings.Contains(out.Message, "model unavailable") || !strings.Contains(out.Message, nameErr.Stderr) {
		t.Errorf("Message = %q, want error and stderr", out.Message)
	}
}

func TestRunIgnoresSinkErrors(t *testing.T) {
	exec := &scriptedExecutor{results: []api.ExecutionResult{{Stdout: "ok"}}}
	sink := &recordingSink{err: errors.New("disk full")}

	out := New(exec, &scriptedGenerator{}, WithHistory(sink), quiet()).Run(context.Background(), "x", "python")

	if !out.Success {
		t.Errorf("outcome = %+v, want success despite sink error", out)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := &scriptedExecutor{results: []api.ExecutionResult{nameErr}}
	gen := &scriptedGenerator{}

	out := New(exec, gen, quiet()).Run(ctx, "x", "python")

	if out.Reason != ReasonCancelled {
		t.Errorf("Reason = %q, want cancelled", out.Reason)
	}
	if len(exec.calls) != 1 || len(gen.prompts) != 0 {
		t.Errorf("executions = %d, generator calls = %d, want 1 and 0", len(exec.calls), len(gen.prompts))
	}
}

func TestRunOutcomeMetric(t *testing.T) {
	counter := observability.CorrectionOutcomesTotal.WithLabelValues(ReasonExhausted)
	before := testutil.ToFloat64(counter)

	exec := &scriptedExecutor{results: []api.ExecutionResult{nameErr}}
	New(exec, &scriptedGenerator{}, WithMaxRetries(0), quiet()).Run(context.Background(), "x", "python")

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("exhausted counter delta = %f, want 1", got)
	}
}

func TestRunRetryBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxRetries := rapid.IntRange(0, 6).Draw(rt, "maxRetries")
		succeedAt := rapid.IntRange(0, 10).Draw(rt, "succeedAt")

		results := make([]api.ExecutionResult, 0, succeedAt+1)
		for range succeedAt {
			results = append(results, api.ExecutionResult{ExitCode: 1, Stderr: "err"})
		}
		results = append(results, api.ExecutionResult{Stdout: "done"})

		exec := &scriptedExecutor{results: results}
		gen := &scriptedGenerator{replies: []string{"```python\nprint('again')\n```"}}
		sink := &recordingSink{}

		out := New(exec, gen, WithMaxRetries(maxRetries), WithHistory(sink), quiet()).
			Run(context.Background(), "x", "python")

		if len(exec.calls) > maxRetries+1 {
			rt.Fatalf("executions = %d, exceeds %d", len(exec.calls), maxRetries+1)
		}
		if len(sink.records) != len(exec.calls) {
			rt.Fatalf("history records = %d, executions = %d", len(sink.records), len(exec.calls))
		}
		wantSuccess := succeedAt <= maxRetries
		if out.Success != wantSuccess {
			rt.Fatalf("Success = %v, want %v (succeedAt=%d, maxRetries=%d)", out.Success, wantSuccess, succeedAt, maxRetries)
		}
		if out.Attempts != len(exec.calls) {
			rt.Fatalf("Attempts = %d, executions = %d", out.Attempts, len(exec.calls))
		}
	})
}
