// Package transport holds the pieces of the runbox HTTP layer that do not
// depend on routing: the service interfaces the HTTP adapter dispatches to,
// JSON error writing, request-scoped middleware (recovery, request IDs,
// access logging) and the registry of in-flight synchronous executions.
//
// Middleware has the standard func(http.Handler) http.Handler shape and is
// composed with Chain, outermost first.
package transport
