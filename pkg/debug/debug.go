// Package debug provides category-scoped debug output for runbox.
//
// Categories select WHAT is traced (RUNBOX_DEBUG or logging.debug), the
// logger level selects HOW MUCH. A category's messages are emitted at
// DEBUG through slog.Default; Trace messages need the TRACE level.
//
//	debug.Log("sandbox", "spawning", "argv", argv)
//	if debug.TraceEnabled("generator") { /* dump the prompt */ }
//
// Categories: sandbox, classifier, correction, generator, search, tasks,
// mcp, auth, history, all.
package debug

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// LevelTrace sits below slog.LevelDebug. Full prompts, completions and
// command lines are only logged at this level.
const LevelTrace = slog.LevelDebug - 4

// EnvVar overrides the configured categories.
const EnvVar = "RUNBOX_DEBUG"

var enabled atomic.Pointer[map[string]bool]

func init() {
	Init("")
}

// Init sets the enabled categories from a comma-separated list. A
// non-empty RUNBOX_DEBUG takes precedence.
func Init(configured string) {
	if env := os.Getenv(EnvVar); env != "" {
		configured = env
	}
	m := parseCategories(configured)
	enabled.Store(&m)
}

// Enabled reports whether output for category is switched on.
func Enabled(category string) bool {
	m := *enabled.Load()
	return m["all"] || m[category]
}

// Log emits a DEBUG record tagged with category when it is enabled.
func Log(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Default().Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a TRACE record tagged with category when it is enabled.
func Trace(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Default().Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceEnabled reports whether Trace output for category would be written.
func TraceEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(context.Background(), LevelTrace)
}

// ParseLevel maps a level name, including "trace", to a slog.Level.
// Unknown names yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories, sorted.
func Categories() []string {
	m := *enabled.Load()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Truncate shortens s to at most max bytes without splitting a rune and
// marks the cut with "...".
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.ToLower(strings.TrimSpace(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
