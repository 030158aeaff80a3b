package correction

import (
	"regexp"
	"strings"
)

// CodeBlock is one fenced block from a model reply.
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

var (
	codeBlockPattern   = regexp.MustCompile("(?s)```(\\w+)\\n(.*?)```")
	searchQueryPattern = regexp.MustCompile(`SEARCH_WEB:\s*"([^"]+)"`)
	focusModePattern   = regexp.MustCompile(`FOCUS_MODE:\s*(\w+)`)
)

// ExtractCodeBlocks returns every fenced block that carries a language tag,
// in order of appearance. Untagged fences are ignored.
func ExtractCodeBlocks(text string) []CodeBlock {
	matches := codeBlockPattern.FindAllStringSubmatch(text, -1)
	blocks := make([]CodeBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, CodeBlock{Language: m[1], Code: cleanBlock(m[2])})
	}
	return blocks
}

// cleanBlock drops surrounding blank lines and trailing whitespace but keeps
// indentation.
func cleanBlock(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// ExtractSearchQuery returns the quoted query of a SEARCH_WEB directive, or
// "" when there is none.
func ExtractSearchQuery(text string) string {
	if m := searchQueryPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// ExtractFocusMode returns the FOCUS_MODE directive value, or "".
func ExtractFocusMode(text string) string {
	if m := focusModePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// IsSearchRequest reports whether text contains a SEARCH_WEB directive,
// well-formed or not.
func IsSearchRequest(text string) bool {
	return strings.Contains(text, "SEARCH_WEB:")
}
