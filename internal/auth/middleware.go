package auth

import (
	"context"
	"net/http"
	"strings"

	"balancesheet-rag/internal/access"
)

type contextKey string

// principalContextKey is the context key for the authenticated principal
const principalContextKey contextKey = "principal"

// Middleware validates the Authorization header, resolves the principal
// from the directory and adds it to the request context
func Middleware(directory *access.Directory, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error": "Missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, `{"error": "Invalid authorization header format"}`, http.StatusUnauthorized)
			return
		}

		principal, ok := directory.Lookup(parts[1])
		if !ok {
			http.Error(w, `{"error": "Unknown principal"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromContext extracts the authenticated principal from the context
func PrincipalFromContext(ctx context.Context) access.Principal {
	principal, ok := ctx.Value(principalContextKey).(access.Principal)
	if !ok {
		panic("principal not found in context")
	}

	return principal
}
