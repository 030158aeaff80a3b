package api

import (
	"strings"
	"testing"
	"time"
)

func TestValidateExecutionRequest(t *testing.T) {
	cfg := ValidationConfig{MaxCodeSize: 64}

	tests := []struct {
		name      string
		req       ExecutionRequest
		wantParam string
	}{
		{name: "valid request accepted", req: ExecutionRequest{Code: "print(1)", Language: "python"}},
		{name: "unknown language left to the sandbox", req: ExecutionRequest{Code: "x", Language: "cobol"}},
		{name: "missing code rejected", req: ExecutionRequest{Language: "python"}, wantParam: "code"},
		{name: "whitespace code rejected", req: ExecutionRequest{Code: " \n\t", Language: "python"}, wantParam: "code"},
		{name: "oversized code rejected", req: ExecutionRequest{Code: strings.Repeat("x", 65), Language: "python"}, wantParam: "code"},
		{name: "missing language rejected", req: ExecutionRequest{Code: "ls"}, wantParam: "language"},
		{name: "workspace override rejected", req: ExecutionRequest{Code: "ls", Language: "bash", Workspace: "/tmp"}, wantParam: "workspace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExecutionRequest(&tt.req, cfg)
			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if err.Param != tt.wantParam {
				t.Errorf("param = %q, want %q", err.Param, tt.wantParam)
			}
			if err.Type != ErrorTypeInvalidRequest {
				t.Errorf("type = %q, want %q", err.Type, ErrorTypeInvalidRequest)
			}
		})
	}
}

func TestValidateExecutionRequestNoLimit(t *testing.T) {
	req := ExecutionRequest{Code: strings.Repeat("x", 10<<20), Language: "python"}
	if err := ValidateExecutionRequest(&req, ValidationConfig{}); err != nil {
		t.Errorf("zero MaxCodeSize should disable the size check, got %v", err)
	}
}

func TestValidateWaitTimeout(t *testing.T) {
	cfg := ValidationConfig{MaxWaitTime: time.Minute}
	tests := []struct {
		d       time.Duration
		cfg     ValidationConfig
		wantErr bool
	}{
		{d: 5 * time.Second, cfg: cfg},
		{d: time.Minute, cfg: cfg},
		{d: 2 * time.Minute, cfg: cfg, wantErr: true},
		{d: 0, cfg: cfg, wantErr: true},
		{d: -time.Second, cfg: cfg, wantErr: true},
		{d: 0, cfg: ValidationConfig{}},
	}
	for _, tt := range tests {
		err := ValidateWaitTimeout(tt.d, tt.cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateWaitTimeout(%s, max=%s) = %v, wantErr %v", tt.d, tt.cfg.MaxWaitTime, err, tt.wantErr)
		}
	}
}

func TestValidateListLimit(t *testing.T) {
	cfg := ValidationConfig{MaxListLimit: 100}
	tests := []struct {
		in      int
		want    int
		wantErr bool
	}{
		{in: 10, want: 10},
		{in: 0, want: 100},
		{in: 500, want: 100},
		{in: -1, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ValidateListLimit(tt.in, cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateListLimit(%d) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ValidateListLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
