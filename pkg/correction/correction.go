// Package correction runs code, and on failure asks a code-generation model
// for a fix, retrying a bounded number of times. The model may request a web
// search before answering; its results are folded into a follow-up prompt.
package correction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/runbox/pkg/api"
	"github.com/rhuss/runbox/pkg/language"
	"github.com/rhuss/runbox/pkg/observability"
)

// DefaultMaxRetries allows three executions per request.
const DefaultMaxRetries = 2

// DefaultFocusMode is used when a search directive names no focus mode.
const DefaultFocusMode = "webSearch"

// Executor runs one snippet. *sandbox.Sandbox implements it.
type Executor interface {
	Execute(ctx context.Context, code, lang string) api.ExecutionResult
}

// Generator produces free text, possibly containing fenced code blocks,
// for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Searcher answers a web query with text suitable for a prompt.
type Searcher interface {
	Search(ctx context.Context, query, focusMode string) (string, error)
}

// HistorySink receives one record per execution and per search.
type HistorySink interface {
	Record(ctx context.Context, rec api.ExecutionRecord) error
}

// Diagnoser classifies a failed execution. *classifier.Classifier
// implements it.
type Diagnoser interface {
	ClassifyResult(res api.ExecutionResult, ctx map[string]any) api.Diagnosis
}

// Outcome values reported in metrics and Outcome.Reason.
const (
	ReasonSuccess          = "success"
	ReasonExhausted        = "exhausted"
	ReasonNoCode           = "no_code"
	ReasonNoMatchingCode   = "no_matching_code"
	ReasonGeneratorFailure = "generator_error"
	ReasonCancelled        = "cancelled"
)

// Outcome is the final state of one Run.
type Outcome struct {
	Message       string              `json:"message"`
	Success       bool                `json:"success"`
	Reason        string              `json:"reason"`
	Attempts      int                 `json:"attempts"`
	FinalCode     string              `json:"final_code"`
	FinalLanguage string              `json:"final_language"`
	Result        api.ExecutionResult `json:"result"`
	Diagnoses     []api.Diagnosis     `json:"diagnoses,omitempty"`
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxRetries sets how many corrections are attempted after the first
// execution. Negative values are ignored.
func WithMaxRetries(n int) Option {
	return func(l *Loop) {
		if n >= 0 {
			l.maxRetries = n
		}
	}
}

// WithSearcher enables SEARCH_WEB directives.
func WithSearcher(s Searcher) Option {
	return func(l *Loop) { l.searcher = s }
}

// WithHistory sets the execution-history sink.
func WithHistory(h HistorySink) Option {
	return func(l *Loop) { l.history = h }
}

// WithDiagnoser adds classifier suggestions to correction prompts.
func WithDiagnoser(d Diagnoser) Option {
	return func(l *Loop) { l.diagnoser = d }
}

// WithFocusMode sets the default search focus mode.
func WithFocusMode(mode string) Option {
	return func(l *Loop) {
		if mode != "" {
			l.focusMode = mode
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// Loop is safe for concurrent use if its collaborators are.
type Loop struct {
	exec       Executor
	gen        Generator
	searcher   Searcher
	history    HistorySink
	diagnoser  Diagnoser
	maxRetries int
	focusMode  string
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Loop.
func New(exec Executor, gen Generator, opts ...Option) *Loop {
	l := &Loop{
		exec:       exec,
		gen:        gen,
		maxRetries: DefaultMaxRetries,
		focusMode:  DefaultFocusMode,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxRetries returns the configured retry budget.
func (l *Loop) MaxRetries() int { return l.maxRetries }

// Run executes code and corrects it until it succeeds, the retry budget is
// spent, or the model stops producing usable code. At most MaxRetries+1
// executions happen.
func (l *Loop) Run(ctx context.Context, code, lang string) (out Outcome) {
	defer func() {
		observability.CorrectionAttempts.Observe(float64(out.Attempts))
		observability.CorrectionOutcomesTotal.WithLabelValues(out.Reason).Inc()
		l.logger.Info("correction finished", "reason", out.Reason, "attempts", out.Attempts, "language", out.FinalLanguage)
	}()

	for attempt := 0; ; attempt++ {
		res := l.exec.Execute(ctx, code, lang)
		out.Attempts = attempt + 1
		out.Result = res
		out.FinalCode = code
		out.FinalLanguage = lang

		l.record(ctx, api.ExecutionRecord{
			Code:      code,
			Language:  lang,
			Stdout:    res.Stdout,
			Stderr:    res.Stderr,
			Success:   res.Success(),
			CreatedAt: l.now(),
		})

		if res.Success() {
			return l.finish(out, true, ReasonSuccess, successMessage(res.Stdout))
		}
		if attempt >= l.maxRetries {
			return l.finish(out, false, ReasonExhausted, exhaustedMessage(l.maxRetries, res.Stderr))
		}
		if err := ctx.Err(); err != nil {
			return l.finish(out, false, ReasonCancelled, cancelledMessage(err, res.Stderr))
		}

		l.logger.Debug("execution failed, requesting correction", "attempt", attempt+1, "max_retries", l.maxRetries, "language", lang)

		var diag *api.Diagnosis
		if l.diagnoser != nil {
			d := l.diagnoser.ClassifyResult(res, map[string]any{"code": code, "language": lang})
			out.Diagnoses = append(out.Diagnoses, d)
			diag = &d
		}

		reply, err := l.gen.Generate(ctx, correctionPrompt(code, lang, res.Stderr, diag))
		if err != nil {
			l.logger.Error("code generation failed", "error", err)
			return l.finish(out, false, ReasonGeneratorFailure, generatorFailedMessage(err, res.Stderr))
		}

		if IsSearchRequest(reply) && l.searcher != nil {
			if query := ExtractSearchQuery(reply); query != "" {
				results := l.search(ctx, query, ExtractFocusMode(reply))
				reply, err = l.gen.Generate(ctx, searchPrompt(code, lang, res.Stderr, query, results))
				if err != nil {
					l.logger.Error("code generation failed", "error", err)
					return l.finish(out, false, ReasonGeneratorFailure, generatorFailedMessage(err, res.Stderr))
				}
			}
		}

		blocks := ExtractCodeBlocks(reply)
		if len(blocks) == 0 {
			return l.finish(out, false, ReasonNoCode, noCodeMessage(res.Stderr))
		}
		next, ok := firstMatching(blocks, lang)
		if !ok {
			return l.finish(out, false, ReasonNoMatchingCode, noMatchingCodeMessage(lang, res.Stderr))
		}
		code, lang = next.Code, next.Language
	}
}

func (l *Loop) finish(out Outcome, success bool, reason, msg string) Outcome {
	out.Success = success
	out.Reason = reason
	out.Message = msg
	return out
}

// firstMatching returns the first block written in lang or one of its
// aliases.
func firstMatching(blocks []CodeBlock, lang string) (CodeBlock, bool) {
	for _, b := range blocks {
		if language.SameLanguage(b.Language, lang) {
			return b, true
		}
	}
	return CodeBlock{}, false
}

// search runs a query and records it. A failure is folded into the text
// handed to the model instead of aborting the loop.
func (l *Loop) search(ctx context.Context, query, focus string) string {
	if focus == "" {
		focus = l.focusMode
	}
	l.logger.Info("searching the web", "query", query, "focus_mode", focus)

	results, err := l.searcher.Search(ctx, query, focus)
	if err != nil {
		l.logger.Warn("search failed", "query", query, "error", err)
		return fmt.Sprintf("Search failed: %v", err)
	}
	l.record(ctx, api.ExecutionRecord{
		Code:      fmt.Sprintf("SEARCH_WEB: \"%s\" (Focus Mode: %s)", query, focus),
		Language:  api.LanguageWebSearch,
		Stdout:    results,
		Success:   true,
		CreatedAt: l.now(),
	})
	return results
}

func (l *Loop) record(ctx context.Context, rec api.ExecutionRecord) {
	if l.history == nil {
		return
	}
	if err := l.history.Record(ctx, rec); err != nil {
		l.logger.Warn("failed to record execution history", "language", rec.Language, "error", err)
	}
}
