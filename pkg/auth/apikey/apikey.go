// Package apikey validates static API keys sent as a bearer token or in
// the X-API-Key header. Keys are stored as SHA-256 hashes and compared in
// constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/runbox/pkg/auth"
)

// HeaderName is the alternative header carrying a raw key.
const HeaderName = "X-API-Key"

// Key pairs a raw key with the subject it authenticates.
type Key struct {
	Key     string
	Subject string
}

type entry struct {
	hash    [32]byte
	subject string
}

// Authenticator validates API keys against a static key store.
type Authenticator struct {
	keys []entry
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New hashes keys immediately; plaintext keys are not retained. Entries
// with an empty key are skipped, and an empty subject defaults to
// "apikey-N".
func New(keys []Key) *Authenticator {
	a := &Authenticator{}
	for i, k := range keys {
		if k.Key == "" {
			continue
		}
		subject := k.Subject
		if subject == "" {
			subject = fmt.Sprintf("apikey-%d", i)
		}
		a.keys = append(a.keys, entry{hash: sha256.Sum256([]byte(k.Key)), subject: subject})
	}
	return a
}

// Authenticate abstains when neither header carries a key, and votes No
// for a present but unknown key.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := credential(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	tokenHash := sha256.Sum256([]byte(token))
	match := -1
	for i, e := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], e.hash[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{Subject: a.keys[match].subject, Method: "apikey"},
	}
}

// credential prefers X-API-Key over a bearer token.
func credential(r *http.Request) (string, bool) {
	if v, ok := r.Header[http.CanonicalHeaderKey(HeaderName)]; ok && len(v) > 0 {
		return strings.TrimSpace(v[0]), true
	}
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", false
	}
	return strings.TrimSpace(token), true
}
