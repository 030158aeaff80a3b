package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type mockAuthn struct {
	result AuthResult
	calls  int
}

func (m *mockAuthn) Authenticate(_ context.Context, _ *http.Request) AuthResult {
	m.calls++
	return m.result
}

func TestAuthChain(t *testing.T) {
	yes := func(sub string) *mockAuthn {
		return &mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: sub}}}
	}
	no := func() *mockAuthn { return &mockAuthn{result: AuthResult{Decision: No, Err: ErrUnauthenticated}} }
	abstain := func() *mockAuthn { return &mockAuthn{result: AuthResult{Decision: Abstain}} }

	tests := []struct {
		name        string
		authns      []*mockAuthn
		def         AuthDecision
		want        AuthDecision
		wantSubject string
	}{
		{"first yes stops", []*mockAuthn{yes("alice"), no()}, No, Yes, "alice"},
		{"first no stops", []*mockAuthn{no(), yes("bob")}, No, No, ""},
		{"abstain then yes", []*mockAuthn{abstain(), yes("carol")}, No, Yes, "carol"},
		{"all abstain reject", []*mockAuthn{abstain(), abstain()}, No, No, ""},
		{"all abstain allow", []*mockAuthn{abstain()}, Yes, Yes, "anonymous"},
		{"empty chain allow", nil, Yes, Yes, "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &AuthChain{DefaultDecision: tt.def}
			for _, a := range tt.authns {
				chain.Authenticators = append(chain.Authenticators, a)
			}
			r, _ := http.NewRequest("GET", "/", nil)
			result := chain.Authenticate(context.Background(), r)

			if result.Decision != tt.want {
				t.Fatalf("Decision = %v, want %v", result.Decision, tt.want)
			}
			if tt.want == Yes && result.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", result.Identity.Subject, tt.wantSubject)
			}
			if tt.want == No && !errors.Is(result.Err, ErrUnauthenticated) {
				t.Errorf("Err = %v, want ErrUnauthenticated", result.Err)
			}
		})
	}
}

func TestAuthChain_StopsEvaluating(t *testing.T) {
	second := &mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "x"}}}
	chain := &AuthChain{Authenticators: []Authenticator{
		&mockAuthn{result: AuthResult{Decision: No}},
		second,
	}}
	r, _ := http.NewRequest("GET", "/", nil)
	chain.Authenticate(context.Background(), r)
	if second.calls != 0 {
		t.Errorf("second authenticator called %d times, want 0", second.calls)
	}
}

func TestAnonymousIsCopied(t *testing.T) {
	chain := &AuthChain{DefaultDecision: Yes}
	r, _ := http.NewRequest("GET", "/", nil)
	chain.Authenticate(context.Background(), r).Identity.Subject = "mutated"
	if Anonymous.Subject != "anonymous" {
		t.Errorf("Anonymous.Subject = %q, shared state leaked", Anonymous.Subject)
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if IdentityFromContext(ctx) != nil || SubjectFromContext(ctx) != "" {
		t.Error("empty context should carry no identity")
	}
	ctx = SetIdentity(ctx, &Identity{Subject: "dave"})
	if SubjectFromContext(ctx) != "dave" {
		t.Errorf("SubjectFromContext = %q, want dave", SubjectFromContext(ctx))
	}
}

func TestWindowLimiter(t *testing.T) {
	l := NewWindowLimiter(2)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	alice := &Identity{Subject: "alice"}
	bob := &Identity{Subject: "bob"}
	ctx := context.Background()

	for i := range 2 {
		if err := l.Allow(ctx, alice); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := l.Allow(ctx, alice); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("third request: err = %v, want ErrTooManyRequests", err)
	}
	if err := l.Allow(ctx, bob); err != nil {
		t.Errorf("other subject: %v", err)
	}

	now = now.Add(time.Minute)
	if err := l.Allow(ctx, alice); err != nil {
		t.Errorf("new window: %v", err)
	}
}

func TestWindowLimiter_Disabled(t *testing.T) {
	l := NewWindowLimiter(0)
	for range 100 {
		if err := l.Allow(context.Background(), &Identity{Subject: "a"}); err != nil {
			t.Fatalf("disabled limiter rejected: %v", err)
		}
	}
}
