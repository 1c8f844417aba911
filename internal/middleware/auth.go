package middleware

import (
	"net/http"
	"strings"

	"storefront/internal/auth"
)

// RequireAuth validates the bearer token and the liveness of the session it
// names, then attaches the principal to the request context. A valid token
// whose session has been deactivated is rejected.
func RequireAuth(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := authSvc.AuthenticateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := auth.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
