// Package auth guards the runbox HTTP API.
//
// Authentication uses a chain of authenticators with three-outcome voting:
// each returns Yes (identity found), No (credentials invalid) or Abstain
// (cannot handle these credentials). A default decision applies when every
// authenticator abstains. The chain runs as HTTP middleware that stores the
// caller's Identity in the request context and optionally enforces a
// per-subject request rate.
package auth
