// Package noop provides an authenticator that accepts all requests.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/runbox/pkg/auth"
)

// Authenticator always votes Yes with the anonymous identity.
type Authenticator struct{}

var _ auth.Authenticator = Authenticator{}

func (Authenticator) Authenticate(context.Context, *http.Request) auth.AuthResult {
	id := auth.Anonymous
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}
