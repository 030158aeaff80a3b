package api

import "time"

// SecurityLevel selects how strongly code is isolated.
type SecurityLevel string

const (
	SecurityLow    SecurityLevel = "low"
	SecurityMedium SecurityLevel = "medium"
	SecurityHigh   SecurityLevel = "high"
)

// ParseSecurityLevel returns the level for s, or false if s is not a known level.
func ParseSecurityLevel(s string) (SecurityLevel, bool) {
	switch l := SecurityLevel(s); l {
	case SecurityLow, SecurityMedium, SecurityHigh:
		return l, true
	}
	return "", false
}

// ExecutionRequest is a unit of code to run.
type ExecutionRequest struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	Workspace string `json:"workspace,omitempty"`
}

// ExecutionResult is the outcome of one sandbox run.
type ExecutionResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Language string        `json:"language,omitempty"`
	Backend  string        `json:"backend,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// Success reports whether the run exited cleanly and wrote nothing to stderr.
func (r ExecutionResult) Success() bool {
	return r.ExitCode == 0 && r.Stderr == ""
}

// Strategy names the classifier rule that produced a diagnosis.
type Strategy string

// StrategyDefault is used when neither a pattern nor an error kind matched.
const StrategyDefault Strategy = "default"

// Diagnosis is the classifier's verdict on an error. Fixed is always false:
// the classifier only suggests, it never rewrites code.
type Diagnosis struct {
	Strategy   Strategy `json:"strategy"`
	ErrorKind  string   `json:"error_kind"`
	Message    string   `json:"error_message"`
	Suggestion string   `json:"suggestion"`
	Code       string   `json:"code,omitempty"`
	Fixed      bool     `json:"fixed"`
}

// ErrorRecord is one classified error kept in the classifier history.
type ErrorRecord struct {
	ErrorKind string         `json:"error_type"`
	Message   string         `json:"error_message"`
	Trace     string         `json:"traceback,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ExecutionRecord is the entry handed to the execution-history sink.
type ExecutionRecord struct {
	Code      string    `json:"code"`
	Language  string    `json:"language"`
	Stdout    string    `json:"stdout"`
	Stderr    string    `json:"stderr"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"created_at"`
}

// LanguageWebSearch is the language recorded for search requests in the
// execution history.
const LanguageWebSearch = "web_search"
