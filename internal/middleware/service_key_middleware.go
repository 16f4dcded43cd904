package middleware

import (
	"net/http"

	"github.com/fahdr/ecomm-sub005/internal/auth"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

// ServiceKeyMiddleware admits internal callers presenting the shared service key
// in X-Service-Key or as a bearer token
func ServiceKeyMiddleware(serviceKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := auth.CredentialFromRequest(r, auth.ServiceKeyHeader)
			if provided == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing service key")
				return
			}
			if !auth.ServiceKeyMatches(serviceKey, provided) {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid service key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
