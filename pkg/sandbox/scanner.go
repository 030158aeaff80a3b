package sandbox

import (
	"fmt"
	"strings"

	"github.com/rhuss/runbox/pkg/language"
)

// Scanner inspects code before it is written to disk. A nil Violation
// means the code may run.
type Scanner interface {
	Scan(lang string, code string) *Violation
}

// Violation describes why a scan rejected code.
type Violation struct {
	Language string
	Entry    string
	Noun     string // "function", "command" or "operation"
}

// Message renders the stderr reported for a rejected script.
func (v *Violation) Message() string {
	return fmt.Sprintf("Error: Use of potentially dangerous %s '%s' is not allowed.", v.Noun, v.Entry)
}

// denylist is an ordered list of substrings; the first hit is reported.
type denylist struct {
	noun    string
	entries []string
}

// DenylistScanner rejects code that textually contains a per-language
// entry. It is a substring check and trivially evadable: treat it as a
// guard against careless snippets, not as an isolation boundary.
type DenylistScanner struct {
	lists map[string]denylist
}

// NewDenylistScanner returns a scanner loaded with the built-in lists.
func NewDenylistScanner() *DenylistScanner {
	return &DenylistScanner{lists: map[string]denylist{
		language.Python: {noun: "function", entries: []string{
			"os.system", "subprocess", "pty", "popen",
			"exec", "eval", "compile", "__import__",
			"importlib", "builtins", "globals", "locals",
		}},
		language.Bash: {noun: "command", entries: []string{
			"rm -rf", "mkfs", "dd", ">", ">>",
			"chmod", "chown", "sudo", "su",
			"apt", "yum", "dnf", "pacman", "brew",
		}},
		language.JavaScript: {noun: "operation", entries: []string{
			"require('child_process')", "require('fs')",
			"process.exit", "process.env", "process.kill",
		}},
	}}
}

// Scan reports the first denylist entry contained in code. lang must be a
// canonical language name; languages without a list always pass.
func (s *DenylistScanner) Scan(lang, code string) *Violation {
	list, ok := s.lists[lang]
	if !ok {
		return nil
	}
	for _, entry := range list.entries {
		if strings.Contains(code, entry) {
			return &Violation{Language: lang, Entry: entry, Noun: list.noun}
		}
	}
	return nil
}

// Entries returns a copy of the denylist for lang.
func (s *DenylistScanner) Entries(lang string) []string {
	return append([]string(nil), s.lists[lang].entries...)
}

// NopScanner accepts everything.
type NopScanner struct{}

func (NopScanner) Scan(string, string) *Violation { return nil }
