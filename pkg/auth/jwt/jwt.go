// Package jwt validates HMAC-signed JSON Web Tokens sent as bearer tokens.
//
// Tokens must be signed with HS256, HS384 or HS512 using the shared secret.
// Issuer and audience are checked when configured, and expiry is always
// enforced when the token carries an exp claim.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/runbox/pkg/auth"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Secret is the shared HMAC key. Required.
	Secret string

	// Issuer is the expected iss claim. If empty, issuer is not validated.
	Issuer string

	// Audience is the expected aud claim. If empty, audience is not validated.
	Audience string

	// Leeway tolerates clock skew on exp/nbf/iat (default: 30s).
	Leeway time.Duration

	// UserClaim is the claim used as the identity subject (default: "sub").
	UserClaim string

	// ScopesClaim holds authorization scopes as a space-separated string
	// or an array (default: "scope").
	ScopesClaim string
}

func (c *Config) applyDefaults() {
	if c.Leeway == 0 {
		c.Leeway = 30 * time.Second
	}
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
}

// Authenticator validates HMAC-signed bearer tokens.
type Authenticator struct {
	config Config
	key    []byte
	parser *jwtlib.Parser
	logger *slog.Logger
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates a JWT authenticator. It fails when no secret is configured.
func New(cfg Config, logger *slog.Logger) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret is required")
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		config: cfg,
		key:    []byte(cfg.Secret),
		parser: jwtlib.NewParser(opts...),
		logger: logger,
	}, nil
}

// Authenticate abstains without a bearer token, and votes No for any
// token that fails signature or claim validation.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	tokenStr, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return auth.AuthResult{Decision: auth.No, Err: errors.New("empty bearer token")}
	}

	claims := jwtlib.MapClaims{}
	token, err := a.parser.ParseWithClaims(tokenStr, claims, func(*jwtlib.Token) (any, error) {
		return a.key, nil
	})
	if err != nil || !token.Valid {
		a.logger.Debug("JWT validation failed", "error", err)
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	subject, _ := claims[a.config.UserClaim].(string)
	if subject == "" {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("JWT missing %q claim", a.config.UserClaim),
		}
	}

	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject: subject,
			Method:  "jwt",
			Scopes:  scopes(claims[a.config.ScopesClaim]),
		},
	}
}

// Sign issues a token for subject valid for ttl, using HS256 and the
// configured issuer and audience. It backs the CLI's token helper and tests.
func (a *Authenticator) Sign(subject string, ttl time.Duration, scope ...string) (string, error) {
	now := time.Now()
	claims := jwtlib.MapClaims{
		a.config.UserClaim: subject,
		"iat":              now.Unix(),
		"exp":              now.Add(ttl).Unix(),
	}
	if a.config.Issuer != "" {
		claims["iss"] = a.config.Issuer
	}
	if a.config.Audience != "" {
		claims["aud"] = a.config.Audience
	}
	if len(scope) > 0 {
		claims[a.config.ScopesClaim] = strings.Join(scope, " ")
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.key)
}

func scopes(val any) []string {
	switch v := val.(type) {
	case string:
		if parts := strings.Fields(v); len(parts) > 0 {
			return parts
		}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
