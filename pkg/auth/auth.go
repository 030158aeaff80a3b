package auth

import (
	"context"
	"errors"
	"net/http"
)

// AuthDecision represents the three possible outcomes of authentication.
type AuthDecision int

const (
	// Yes means credentials are valid. The chain stops and the identity is used.
	Yes AuthDecision = iota

	// No means credentials are present but invalid. The chain stops and the
	// request is rejected.
	No

	// Abstain means this authenticator cannot handle the credentials type.
	Abstain
)

// String returns the decision name for logs.
func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "abstain"
	}
}

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // populated only when Decision == Yes
	Err      error     // populated only when Decision == No
}

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the unique identifier (required, non-empty).
	Subject string

	// Method names the authenticator that produced the identity.
	Method string

	// Scopes lists the authorization scopes granted.
	Scopes []string
}

// Anonymous is the identity granted when every authenticator abstains and
// the chain defaults to Yes.
var Anonymous = Identity{Subject: "anonymous", Method: "none"}

// Authenticator examines request credentials and returns a three-outcome vote.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain evaluates authenticators in order.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision is used when all authenticators abstain. Only Yes and
	// No are meaningful.
	DefaultDecision AuthDecision
}

// Authenticate runs the chain and stops on the first Yes or No.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		if result := authn.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}

	if c.DefaultDecision == Yes {
		id := Anonymous
		return AuthResult{Decision: Yes, Identity: &id}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}
