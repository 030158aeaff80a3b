package classifier

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rhuss/runbox/pkg/api"
)

// Strategies produced by the pattern rules.
const (
	StrategyUndefinedVariable api.Strategy = "undefined_variable"
	StrategyMissingPackage    api.Strategy = "missing_package"
	StrategyInvalidSyntax     api.Strategy = "invalid_syntax"
	StrategyMissingParen      api.Strategy = "missing_closing_parenthesis"
	StrategyMissingBracket    api.Strategy = "missing_closing_bracket"
	StrategyMissingBrace      api.Strategy = "missing_closing_brace"
	StrategyIndentation       api.Strategy = "indentation_error"
	StrategyFileNotFound      api.Strategy = "file_not_found"
	StrategyPermissionDenied  api.Strategy = "permission_denied"
	StrategyIndexOutOfRange   api.Strategy = "index_out_of_range"
	StrategyKeyNotFound       api.Strategy = "key_not_found"
	StrategyDivisionByZero    api.Strategy = "division_by_zero"
	StrategyTypeMismatch      api.Strategy = "type_mismatch"
	StrategyAttributeError    api.Strategy = "attribute_error"
)

// Strategies produced by the error-kind fallback.
const (
	StrategyImportError       api.Strategy = "import_error"
	StrategySyntaxError       api.Strategy = "syntax_error"
	StrategyNameError         api.Strategy = "name_error"
	StrategyTypeError         api.Strategy = "type_error"
	StrategyIndexError        api.Strategy = "index_error"
	StrategyKeyError          api.Strategy = "key_error"
	StrategyFileNotFoundError api.Strategy = "file_not_found_error"
	StrategyPermissionError   api.Strategy = "permission_error"
	StrategyTimeoutError      api.Strategy = "timeout_error"
	StrategyValueError        api.Strategy = "value_error"
	StrategyZeroDivisionError api.Strategy = "zero_division_error"
)

const syntaxHint = "Please check for missing parentheses, brackets, or other syntax issues."

// rule is one entry of the ordered pattern table. suggest receives the full
// error message, the submatches of pattern and the code under diagnosis.
type rule struct {
	pattern *regexp.Regexp
	suggest func(msg string, m []string, code string) (api.Strategy, string)
}

func fixed(s api.Strategy, text string) func(string, []string, string) (api.Strategy, string) {
	return func(string, []string, string) (api.Strategy, string) { return s, text }
}

// rules is walked in order; the first match wins.
var rules = []rule{
	{
		pattern: regexp.MustCompile(`name '(\w+)' is not defined`),
		suggest: func(_ string, m []string, _ string) (api.Strategy, string) {
			return StrategyUndefinedVariable, fmt.Sprintf("The variable '%s' is not defined. Make sure you have defined it before using it.", m[1])
		},
	},
	{
		pattern: regexp.MustCompile(`No module named '([^']+)'`),
		suggest: func(_ string, m []string, _ string) (api.Strategy, string) {
			return StrategyMissingPackage, fmt.Sprintf("The package '%s' is not installed. You can install it using pip: pip install %s", m[1], m[1])
		},
	},
	{
		pattern: regexp.MustCompile(`invalid syntax`),
		suggest: func(msg string, _ []string, code string) (api.Strategy, string) {
			return StrategyInvalidSyntax, "There is a syntax error in your code:\n" + syntaxLocation(msg, code) + "\n" + syntaxHint
		},
	},
	{
		// Python 3.10+ reports "'(' was never closed" instead of the EOF form.
		pattern: regexp.MustCompile(`unexpected EOF|was never closed`),
		suggest: func(_ string, _ []string, code string) (api.Strategy, string) { return unclosed(code) },
	},
	{
		pattern: regexp.MustCompile(`(?i)indentation`),
		suggest: fixed(StrategyIndentation, "There is an indentation error in your code. Make sure your indentation is consistent and uses either spaces or tabs, but not both."),
	},
	{
		pattern: regexp.MustCompile(`No such file or directory: '([^']+)'`),
		suggest: func(_ string, m []string, _ string) (api.Strategy, string) {
			return StrategyFileNotFound, fmt.Sprintf("The file '%s' could not be found. Make sure the file exists and the path is correct.", m[1])
		},
	},
	{
		pattern: regexp.MustCompile(`Permission denied`),
		suggest: fixed(StrategyPermissionDenied, permissionText),
	},
	{
		pattern: regexp.MustCompile(`list index out of range`),
		suggest: fixed(StrategyIndexOutOfRange, indexText),
	},
	{
		pattern: regexp.MustCompile(`KeyError: '([^']+)'`),
		suggest: func(_ string, m []string, _ string) (api.Strategy, string) {
			return StrategyKeyNotFound, keyText(m[1])
		},
	},
	{
		pattern: regexp.MustCompile(`division by zero`),
		suggest: fixed(StrategyDivisionByZero, zeroDivisionText),
	},
	{
		pattern: regexp.MustCompile(`unsupported operand type\(s\) for (.+): '(.+)' and '(.+)'`),
		suggest: func(_ string, m []string, _ string) (api.Strategy, string) {
			return StrategyTypeMismatch, fmt.Sprintf("You are trying to perform the operation '%s' on incompatible types: '%s' and '%s'. Make sure the types are compatible or convert them to compatible types.", m[1], m[2], m[3])
		},
	},
	{
		pattern: regexp.MustCompile(`'(.+)' object has no attribute '(.+)'`),
		suggest: func(_ string, m []string, _ string) (api.Strategy, string) {
			return StrategyAttributeError, fmt.Sprintf("The object of type '%s' does not have an attribute '%s'. Make sure you are using the correct attribute name or check the documentation for available attributes.", m[1], m[2])
		},
	},
}

const (
	permissionText   = "You do not have permission to access the file or directory. Make sure you have the necessary permissions."
	indexText        = "You are trying to access an index that is out of range. Make sure your indices are within the valid range for your data structure."
	zeroDivisionText = "You are trying to divide by zero. Make sure your divisor is not zero before performing division."
)

func keyText(key string) string {
	return fmt.Sprintf("The key '%s' does not exist in the dictionary. Make sure the key exists before trying to access it.", key)
}

// kindHandlers back the pattern table, keyed by error kind.
var kindHandlers = map[string]func(msg, code string) (api.Strategy, string){
	"ImportError":         importSuggestion,
	"ModuleNotFoundError": importSuggestion,
	"SyntaxError": func(msg, code string) (api.Strategy, string) {
		return StrategySyntaxError, "There is a syntax error in your code:\n" + syntaxLocation(msg, code) + "\n" + syntaxHint
	},
	"NameError": func(msg, _ string) (api.Strategy, string) {
		return StrategyNameError, fmt.Sprintf("The variable '%s' is not defined. Make sure you have defined it before using it.", quoted(msg))
	},
	"TypeError": func(msg, _ string) (api.Strategy, string) {
		return StrategyTypeError, fmt.Sprintf("There is a type error in your code: %s. Make sure you are using the correct types for your operations.", msg)
	},
	"IndexError": func(string, string) (api.Strategy, string) { return StrategyIndexError, indexText },
	"KeyError": func(msg, _ string) (api.Strategy, string) {
		return StrategyKeyError, keyText(strings.Trim(msg, "'"))
	},
	"FileNotFoundError": func(msg, _ string) (api.Strategy, string) {
		return StrategyFileNotFoundError, fmt.Sprintf("The file '%s' could not be found. Make sure the file exists and the path is correct.", quoted(msg))
	},
	"PermissionError": func(string, string) (api.Strategy, string) { return StrategyPermissionError, permissionText },
	"TimeoutError": func(string, string) (api.Strategy, string) {
		return StrategyTimeoutError, "The operation timed out. This could be due to an infinite loop or a long-running operation. Try optimizing your code or adding a timeout mechanism."
	},
	"ValueError": func(msg, _ string) (api.Strategy, string) {
		return StrategyValueError, fmt.Sprintf("There is a value error in your code: %s. Make sure you are using valid values for your operations.", msg)
	},
	"ZeroDivisionError": func(string, string) (api.Strategy, string) { return StrategyZeroDivisionError, zeroDivisionText },
}

func importSuggestion(msg, _ string) (api.Strategy, string) {
	name := quoted(msg)
	return StrategyImportError, fmt.Sprintf("The module '%s' could not be imported. You may need to install it using pip: pip install %s", name, name)
}

func defaultSuggestion(msg string) string {
	return fmt.Sprintf("An error occurred: %s. Please check your code and try again.", msg)
}

// quoted returns the text between the first pair of single quotes in msg,
// or "unknown".
func quoted(msg string) string {
	parts := strings.Split(msg, "'")
	if len(parts) < 2 {
		return "unknown"
	}
	return parts[1]
}

var lineRef = regexp.MustCompile(`line (\d+)`)

// syntaxLocation points at the offending line when msg carries a line
// number that falls inside code.
func syntaxLocation(msg, code string) string {
	m := lineRef.FindAllStringSubmatch(msg, -1)
	if len(m) == 0 {
		return "Unknown location"
	}
	n, err := strconv.Atoi(m[len(m)-1][1])
	lines := strings.Split(code, "\n")
	if err != nil || n < 1 || n > len(lines) {
		return "Unknown location"
	}
	return fmt.Sprintf("Line %d: %s", n, lines[n-1])
}

type delimiter struct {
	strategy    api.Strategy
	open, close string
	name        string
}

var delimiters = []delimiter{
	{StrategyMissingParen, "(", ")", "parentheses"},
	{StrategyMissingBracket, "[", "]", "brackets"},
	{StrategyMissingBrace, "{", "}", "braces"},
}

// unclosed picks the delimiter with the largest opening surplus. Ties go to
// the earlier delimiter, and no surplus falls back to the parenthesis hint.
func unclosed(code string) (api.Strategy, string) {
	best, bestDeficit := delimiters[0], 0
	var bestOpen, bestClose int
	for _, d := range delimiters {
		o, c := strings.Count(code, d.open), strings.Count(code, d.close)
		if o-c > bestDeficit {
			best, bestDeficit, bestOpen, bestClose = d, o-c, o, c
		}
	}
	if bestDeficit == 0 {
		return StrategyMissingParen, "Check your code for missing closing parentheses ')'."
	}
	return best.strategy, fmt.Sprintf("You have %d opening %s '%s' but only %d closing %s '%s'. Add %d more closing %s '%s'.",
		bestOpen, best.name, best.open, bestClose, best.name, best.close, bestDeficit, best.name, best.close)
}
