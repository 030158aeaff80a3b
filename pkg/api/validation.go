package api

import (
	"fmt"
	"strings"
	"time"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxCodeSize  int
	MaxWaitTime  time.Duration
	MaxListLimit int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxCodeSize:  1 << 20, // 1MB
		MaxWaitTime:  10 * time.Minute,
		MaxListLimit: 1000,
	}
}

// ValidateExecutionRequest checks an ExecutionRequest for validity. It returns
// an *APIError describing the first validation failure, or nil if the request
// is valid. Unknown languages are not rejected here: the sandbox reports them
// as a failed run.
func ValidateExecutionRequest(req *ExecutionRequest, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(req.Code) == "" {
		return NewInvalidRequestError("code", "code is required")
	}

	if cfg.MaxCodeSize > 0 && len(req.Code) > cfg.MaxCodeSize {
		return NewInvalidRequestError("code",
			fmt.Sprintf("code exceeds maximum size of %d bytes", cfg.MaxCodeSize))
	}

	if strings.TrimSpace(req.Language) == "" {
		return NewInvalidRequestError("language", "language is required")
	}

	if req.Workspace != "" {
		return NewInvalidRequestError("workspace", "per-request workspaces are not supported")
	}

	return nil
}

// ValidateWaitTimeout checks a task wait timeout. Zero means wait without
// limit and is only accepted when no maximum is configured.
func ValidateWaitTimeout(d time.Duration, cfg ValidationConfig) *APIError {
	if d < 0 {
		return NewInvalidRequestError("timeout", "timeout must not be negative")
	}
	if cfg.MaxWaitTime > 0 && (d == 0 || d > cfg.MaxWaitTime) {
		return NewInvalidRequestError("timeout",
			fmt.Sprintf("timeout must be between 0 and %s", cfg.MaxWaitTime))
	}
	return nil
}

// ValidateListLimit checks a listing limit. Zero means no limit and is
// replaced by the configured maximum.
func ValidateListLimit(limit int, cfg ValidationConfig) (int, *APIError) {
	if limit < 0 {
		return 0, NewInvalidRequestError("limit", "limit must be a positive integer")
	}
	if cfg.MaxListLimit > 0 && (limit == 0 || limit > cfg.MaxListLimit) {
		return cfg.MaxListLimit, nil
	}
	return limit, nil
}
