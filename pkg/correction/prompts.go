package correction

import (
	"fmt"
	"strings"

	"github.com/rhuss/runbox/pkg/api"
)

func writeAttempt(b *strings.Builder, code, lang, stderr string) {
	fmt.Fprintf(b, "I tried to execute the following %s code:\n\n```%s\n%s\n```\n\n", lang, lang, code)
	fmt.Fprintf(b, "But I encountered this error:\n\n```\n%s\n```\n\n", stderr)
}

// correctionPrompt asks the model for a fixed version of code, offering a
// web search as an alternative.
func correctionPrompt(code, lang, stderr string, diag *api.Diagnosis) string {
	var b strings.Builder
	writeAttempt(&b, code, lang, stderr)
	if diag != nil && diag.Suggestion != "" {
		fmt.Fprintf(&b, "Diagnosis (%s): %s\n\n", diag.Strategy, diag.Suggestion)
	}
	b.WriteString("Please analyze this error. Provide a corrected version of the code, or if you need more information to fix this, request a web search using the format:\n")
	b.WriteString("SEARCH_WEB: \"your search query about the error\"\n")
	return b.String()
}

// searchPrompt follows up a search directive with its results.
func searchPrompt(code, lang, stderr, query, results string) string {
	var b strings.Builder
	writeAttempt(&b, code, lang, stderr)
	fmt.Fprintf(&b, "You requested a web search for: %s\n\n", query)
	fmt.Fprintf(&b, "Here are the search results:\n\n%s\n\n", results)
	b.WriteString("Based on these search results, please provide a corrected version of the code.")
	return b.String()
}

func successMessage(stdout string) string {
	return "Execution successful:\n\n" + stdout
}

func exhaustedMessage(maxRetries int, stderr string) string {
	return fmt.Sprintf("I've tried %d times, but I'm still encountering errors:\n\n%s\n\nPlease provide more guidance.", maxRetries+1, stderr)
}

func noCodeMessage(stderr string) string {
	return "I couldn't generate a corrected version of the code. Here's the error I encountered:\n\n" + stderr
}

func noMatchingCodeMessage(lang, stderr string) string {
	return fmt.Sprintf("I couldn't generate a corrected version of the code in %s. Here's the error I encountered:\n\n%s", lang, stderr)
}

func generatorFailedMessage(err error, stderr string) string {
	return fmt.Sprintf("I couldn't get a corrected version of the code (%v). Here's the error I encountered:\n\n%s", err, stderr)
}

func cancelledMessage(err error, stderr string) string {
	return fmt.Sprintf("Correction stopped: %v. Here's the last error I encountered:\n\n%s", err, stderr)
}
