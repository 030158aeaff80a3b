package api

import (
	"encoding/json"
	"testing"
)

func TestAPIErrorInterface(t *testing.T) {
	var _ error = &APIError{}
}

func TestAPIErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			"with param",
			&APIError{Type: ErrorTypeInvalidRequest, Param: "language", Message: "is required"},
			"invalid_request: is required (param: language)",
		},
		{
			"without param",
			&APIError{Type: ErrorTypeServerError, Message: "internal failure"},
			"server_error: internal failure",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("APIError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *APIError
		wantType  ErrorType
		wantParam string
	}{
		{"invalid request", NewInvalidRequestError("code", "is required"), ErrorTypeInvalidRequest, "code"},
		{"not found", NewNotFoundError("task not found"), ErrorTypeNotFound, ""},
		{"server error", NewServerError("internal failure"), ErrorTypeServerError, ""},
		{"too many requests", NewTooManyRequestsError("rate limit exceeded"), ErrorTypeTooManyRequests, ""},
		{"unavailable", NewUnavailableError("no generator configured"), ErrorTypeUnavailable, ""},
		{"auth", NewAuthError("authentication required"), ErrorTypeAuthentication, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", tt.err.Type, tt.wantType)
			}
			if tt.err.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", tt.err.Param, tt.wantParam)
			}
		})
	}
}

func TestAPIErrorOmitEmpty(t *testing.T) {
	err := &APIError{Type: ErrorTypeServerError, Message: "fail"}
	data, marshalErr := json.Marshal(ErrorResponse{Error: err})
	if marshalErr != nil {
		t.Fatalf("Marshal: %v", marshalErr)
	}

	var m map[string]map[string]any
	if unmarshalErr := json.Unmarshal(data, &m); unmarshalErr != nil {
		t.Fatalf("Unmarshal: %v", unmarshalErr)
	}

	if _, ok := m["error"]["code"]; ok {
		t.Error("empty code should be omitted from JSON")
	}
	if _, ok := m["error"]["param"]; ok {
		t.Error("empty param should be omitted from JSON")
	}
	if m["error"]["type"] != "server_error" {
		t.Errorf("error.type = %v, want server_error", m["error"]["type"])
	}
}
