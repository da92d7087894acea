package middleware

import (
	"encoding/json"
	"net/http"
)

// writeJSONError writes an error body shaped like huma's error model so
// clients see one error format for middleware and handler failures.
func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":  http.StatusText(status),
		"status": status,
		"detail": message,
	})
}
