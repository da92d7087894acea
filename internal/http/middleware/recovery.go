package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery turns a handler panic into a 500 problem response and logs the
// stack. http.ErrAbortHandler is re-raised so net/http can drop the
// connection as it expects.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "handler panicked",
					slog.Any("panic", rec),
					slog.String("route", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r)),
					slog.String("stack", string(debug.Stack())),
				)
				writeJSONError(w, "internal error", http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
