package apikey

import (
	"context"
	"net/http"
	"testing"

	"github.com/rhuss/runbox/pkg/auth"
)

func newTestAuth() *Authenticator {
	return New([]Key{
		{Key: "sk-test-key-1", Subject: "alice"},
		{Key: "sk-test-key-2"},
		{Key: "", Subject: "skipped"},
	})
}

func authenticate(a *Authenticator, set func(h http.Header)) auth.AuthResult {
	r, _ := http.NewRequest("GET", "/", nil)
	set(r.Header)
	return a.Authenticate(context.Background(), r)
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name        string
		set         func(h http.Header)
		wantDecided auth.AuthDecision
		wantSubject string
	}{
		{"bearer", func(h http.Header) { h.Set("Authorization", "Bearer sk-test-key-1") }, auth.Yes, "alice"},
		{"x-api-key", func(h http.Header) { h.Set("X-API-Key", "sk-test-key-1") }, auth.Yes, "alice"},
		{"default subject", func(h http.Header) { h.Set("Authorization", "Bearer sk-test-key-2") }, auth.Yes, "apikey-1"},
		{"unknown bearer", func(h http.Header) { h.Set("Authorization", "Bearer sk-nope") }, auth.No, ""},
		{"unknown header key", func(h http.Header) { h.Set("X-API-Key", "sk-nope") }, auth.No, ""},
		{"empty bearer", func(h http.Header) { h.Set("Authorization", "Bearer ") }, auth.No, ""},
		{"header wins", func(h http.Header) {
			h.Set("X-API-Key", "sk-nope")
			h.Set("Authorization", "Bearer sk-test-key-1")
		}, auth.No, ""},
		{"no credentials", func(http.Header) {}, auth.Abstain, ""},
		{"basic scheme", func(h http.Header) { h.Set("Authorization", "Basic dXNlcjpwYXNz") }, auth.Abstain, ""},
	}

	a := newTestAuth()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := authenticate(a, tt.set)
			if result.Decision != tt.wantDecided {
				t.Fatalf("Decision = %v, want %v", result.Decision, tt.wantDecided)
			}
			if tt.wantDecided != auth.Yes {
				return
			}
			if result.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", result.Identity.Subject, tt.wantSubject)
			}
			if result.Identity.Method != "apikey" {
				t.Errorf("Method = %q, want apikey", result.Identity.Method)
			}
		})
	}
}

func TestEmptyKeyNotAccepted(t *testing.T) {
	a := newTestAuth()
	if got := authenticate(a, func(h http.Header) { h.Set("X-API-Key", "") }).Decision; got != auth.No {
		t.Errorf("Decision = %v, want no", got)
	}
}
