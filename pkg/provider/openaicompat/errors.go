package openaicompat

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/rhuss/runbox/pkg/provider"
)

// statusError turns a non-2xx Chat Completions response into a
// GenerationError, keeping the backend's own message when it sent one.
func statusError(resp *http.Response) *provider.GenerationError {
	e := &provider.GenerationError{Status: resp.StatusCode, Detail: errorDetail(resp.Body)}
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		e.Failure = provider.FailureRejected
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.Failure = provider.FailureUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		e.Failure = provider.FailureNoModel
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Failure = provider.FailureRateLimited
	default:
		e.Failure = provider.FailureUnavailable
	}
	return e
}

// transportError classifies an error returned by http.Client.Do.
func transportError(err error) *provider.GenerationError {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &provider.GenerationError{Failure: provider.FailureTimeout, Err: err}
	}
	return &provider.GenerationError{Failure: provider.FailureUnreachable, Err: err}
}

// errorDetail reads at most 4KiB of body and returns the error message of a
// ChatErrorResponse, or "" when the body is something else.
func errorDetail(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil {
		return errResp.Error.Message
	}
	return ""
}
