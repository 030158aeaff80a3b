// Package classifier turns error text into a structured diagnosis with a
// human-readable suggestion, and keeps a bounded history of every error it
// has seen.
//
// Classification walks an ordered table of message patterns first, then
// falls back to the error kind (ImportError, KeyError, ...), then to a
// generic suggestion. The classifier never rewrites code.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/runbox/pkg/api"
	"github.com/rhuss/runbox/pkg/observability"
)

// DefaultHistoryLimit bounds the error history when no limit is configured.
const DefaultHistoryLimit = 1000

// KindedError is implemented by errors that know their own kind name.
type KindedError interface {
	error
	ErrorKind() string
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithHistoryLimit bounds the error history. Zero means unbounded.
func WithHistoryLimit(n int) Option {
	return func(c *Classifier) {
		if n >= 0 {
			c.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// WithClock overrides the timestamp source for history records.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// Classifier is safe for concurrent use.
type Classifier struct {
	limit  int
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	history []api.ErrorRecord
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		limit:  DefaultHistoryLimit,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify diagnoses an error given its kind and message. ctx may carry
// "code" and "language"; the code is echoed back in the diagnosis.
func (c *Classifier) Classify(errorKind, message string, ctx map[string]any) api.Diagnosis {
	return c.classify(errorKind, message, "", ctx)
}

var (
	kindLine       = regexp.MustCompile(`(?m)^([\w.]*(?:Error|Exception))(?::|\s*$)`)
	timeoutMessage = "Execution timed out after "
)

// ClassifyResult diagnoses a failed execution from its stderr. The kind is
// taken from the last "XxxError:" line, which covers Python tracebacks and
// Node error output.
func (c *Classifier) ClassifyResult(res api.ExecutionResult, ctx map[string]any) api.Diagnosis {
	msg := res.Stderr
	if msg == "" {
		msg = fmt.Sprintf("Process exited with code %d", res.ExitCode)
	}
	return c.classify(ResultKind(res), msg, res.Stderr, ctx)
}

// ResultKind derives an error kind from an execution result.
func ResultKind(res api.ExecutionResult) string {
	if strings.HasPrefix(res.Stderr, timeoutMessage) {
		return "TimeoutError"
	}
	m := kindLine.FindAllStringSubmatch(res.Stderr, -1)
	if len(m) == 0 {
		return "RuntimeError"
	}
	kind := m[len(m)-1][1]
	if i := strings.LastIndexByte(kind, '.'); i >= 0 {
		kind = kind[i+1:]
	}
	return kind
}

// ClassifyError diagnoses a Go error, such as one returned by a task
// function.
func (c *Classifier) ClassifyError(err error, ctx map[string]any) api.Diagnosis {
	return c.classify(ErrorKind(err), err.Error(), fmt.Sprintf("%+v", err), ctx)
}

// ErrorKind names err. KindedError wins, well-known sentinels map onto the
// matching kind, and anything else uses its Go type name.
func ErrorKind(err error) string {
	var k KindedError
	switch {
	case errors.As(err, &k):
		return k.ErrorKind()
	case errors.Is(err, context.DeadlineExceeded):
		return "TimeoutError"
	case errors.Is(err, os.ErrNotExist):
		return "FileNotFoundError"
	case errors.Is(err, os.ErrPermission):
		return "PermissionError"
	}
	name := fmt.Sprintf("%T", err)
	name = strings.TrimLeft(name, "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func (c *Classifier) classify(kind, message, trace string, ctx map[string]any) api.Diagnosis {
	c.record(api.ErrorRecord{
		ErrorKind: kind,
		Message:   message,
		Trace:     trace,
		Context:   maps.Clone(ctx),
		Timestamp: c.now(),
	})

	code, _ := ctx["code"].(string)
	d := api.Diagnosis{
		ErrorKind: kind,
		Message:   message,
		Code:      code,
	}
	d.Strategy, d.Suggestion = suggest(kind, message, code)

	observability.ClassificationsTotal.WithLabelValues(string(d.Strategy)).Inc()
	c.logger.Debug("error classified", "kind", kind, "strategy", d.Strategy)
	return d
}

func suggest(kind, message, code string) (api.Strategy, string) {
	for _, r := range rules {
		if m := r.pattern.FindStringSubmatch(message); m != nil {
			return r.suggest(message, m, code)
		}
	}
	if h, ok := kindHandlers[kind]; ok {
		return h(message, code)
	}
	return api.StrategyDefault, defaultSuggestion(message)
}

func (c *Classifier) record(r api.ErrorRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, r)
	if c.limit > 0 && len(c.history) > c.limit {
		drop := len(c.history) - c.limit
		c.history = append(c.history[:0:0], c.history[drop:]...)
	}
}

// History returns the last limit records in insertion order. limit <= 0
// returns everything.
func (c *Classifier) History(limit int) []api.ErrorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := 0
	if limit > 0 && limit < len(c.history) {
		start = len(c.history) - limit
	}
	out := make([]api.ErrorRecord, len(c.history)-start)
	copy(out, c.history[start:])
	return out
}

// ClearHistory empties the history.
func (c *Classifier) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}
