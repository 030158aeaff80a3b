package provider

import (
	"fmt"
	"strings"
)

// Failure names why a backend produced no completion.
type Failure string

const (
	FailureRejected     Failure = "rejected"           // 400
	FailureUnauthorized Failure = "unauthorized"       // 401, 403
	FailureNoModel      Failure = "model_not_found"    // 404
	FailureRateLimited  Failure = "rate_limited"       // 429
	FailureUnavailable  Failure = "unavailable"        // 5xx and other statuses
	FailureUnreachable  Failure = "unreachable"        // connection or DNS error
	FailureTimeout      Failure = "timeout"            // client deadline
	FailureMalformed    Failure = "malformed_response" // body did not decode
)

var failureText = map[Failure]string{
	FailureRejected:     "code generator rejected the prompt",
	FailureUnauthorized: "code generator refused the credentials (check engine.api_key)",
	FailureNoModel:      "code generator does not serve the configured model",
	FailureRateLimited:  "code generator is rate limiting requests",
	FailureUnavailable:  "code generator is unavailable",
	FailureUnreachable:  "cannot reach the code generator",
	FailureTimeout:      "code generator timed out",
	FailureMalformed:    "code generator sent an unreadable response",
}

// GenerationError is returned by backends when a completion request fails.
// Its text appears verbatim in the correction loop's final message.
type GenerationError struct {
	Failure Failure
	Status  int    // HTTP status, 0 when no response arrived
	Detail  string // message supplied by the backend, if any
	Err     error
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	text, ok := failureText[e.Failure]
	if !ok {
		text = "code generator failed"
	}
	b.WriteString(text)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	switch {
	case e.Detail != "":
		b.WriteString(": " + e.Detail)
	case e.Err != nil:
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Temporary reports whether the same prompt may succeed later.
func (e *GenerationError) Temporary() bool {
	switch e.Failure {
	case FailureRateLimited, FailureUnavailable, FailureUnreachable, FailureTimeout:
		return true
	}
	return false
}
