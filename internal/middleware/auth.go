package middleware

import (
	"context"
	"net/http"
	"strings"

	"reuse-console/internal/logging"
	"reuse-console/internal/model"
)

// TokenVerifier resolves a bearer token to the identity it was issued for.
type TokenVerifier func(token string) (Identity, error)

// Auth rejects requests without a valid bearer token and stores the caller's
// identity in the request context.
func Auth(verify TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logging.Logg.Warn("Missing Authorization header", "uri", r.RequestURI)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			id, err := verify(tokenString)
			if err != nil {
				logging.Logg.Warn("Invalid token", "error", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			id.Token = tokenString

			ctx := context.WithValue(r.Context(), UserContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole answers 403 unless the authenticated caller has role. It must
// run after Auth.
func RequireRole(role model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := IdentityFromContext(r)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if id.Role != role {
				logging.Logg.Warn("Forbidden", "user", id.UserID, "role", id.Role, "uri", r.RequestURI)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
