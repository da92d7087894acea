package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/service"
)

// UserIDHeader carries the id of the calling user. Authentication happens
// upstream of mediarr; the header is trusted as-is.
const UserIDHeader = "X-User-ID"

type principalKey struct{}

// UserResolver looks up the caller named by UserIDHeader.
type UserResolver interface {
	GetByID(ctx context.Context, id models.ULID) (*models.User, error)
}

// Principal resolves UserIDHeader to a service.Principal stored in the
// request context. A missing header or an unknown user yields an anonymous
// principal with no roles. A malformed id is rejected with 400.
func Principal(users UserResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(UserIDHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := models.ParseULID(raw)
			if err != nil {
				writeJSONError(w, "invalid "+UserIDHeader+" header", http.StatusBadRequest)
				return
			}

			user, err := users.GetByID(r.Context(), id)
			if err != nil {
				logger.ErrorContext(r.Context(), "resolving principal",
					slog.String("user_id", raw),
					slog.String("error", err.Error()),
				)
				writeJSONError(w, "resolving user", http.StatusInternalServerError)
				return
			}

			p := service.Principal{UserID: id}
			if user != nil {
				p.Roles = user.Roles
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// ContextWithPrincipal returns a copy of ctx carrying p.
func ContextWithPrincipal(ctx context.Context, p service.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller stored by Principal, or the
// anonymous principal.
func PrincipalFromContext(ctx context.Context) service.Principal {
	if p, ok := ctx.Value(principalKey{}).(service.Principal); ok {
		return p
	}
	return service.Principal{}
}
