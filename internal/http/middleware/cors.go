package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// corsMaxAge is how long browsers may cache a preflight answer.
const corsMaxAge = 24 * 60 * 60

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodHead, http.MethodPost,
		http.MethodPut, http.MethodPatch, http.MethodDelete,
	}, ", ")
	corsHeaders = strings.Join([]string{
		"Accept", "Content-Type", RequestIDHeader, UserIDHeader,
	}, ", ")
	// httprate sets the X-RateLimit-* headers on watch posts.
	corsExposed = strings.Join([]string{
		RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
	}, ", ")
)

// CORS allows cross-origin calls from origins. With no origins, or when the
// list contains "*", any origin is accepted and answered with a wildcard.
// Credentials are never allowed; identity travels in the X-User-ID header.
func CORS(origins ...string) func(http.Handler) http.Handler {
	wildcard := len(origins) == 0
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[strings.TrimSuffix(o, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")

			_, ok := allowed[origin]
			switch {
			case wildcard:
				h.Set("Access-Control-Allow-Origin", "*")
			case ok:
				h.Set("Access-Control-Allow-Origin", origin)
			default:
				// Unknown origins get no CORS headers; the browser blocks the read.
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Expose-Headers", corsExposed)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
