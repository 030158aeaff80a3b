package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/rhuss/runbox/pkg/api"
)

// Recovery catches handler panics, logs them with a stack trace and answers
// 500. The server keeps accepting requests afterwards. http.ErrAbortHandler
// is re-raised so net/http can abort the connection.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("handler panic",
					"request_id", RequestIDFromContext(r.Context()),
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				WriteAPIError(w, api.NewServerError(fmt.Sprintf("internal server error: %v", rec)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
