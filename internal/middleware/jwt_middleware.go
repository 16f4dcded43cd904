package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/fahdr/ecomm-sub005/internal/auth"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// Context keys for storing authentication data
const (
	AdminClaimsKey ContextKey = "adminClaims"
	AdminIDKey     ContextKey = "adminID"
	AdminRolesKey  ContextKey = "adminRoles"
)

// AdminJWTMiddleware validates admin JWT tokens and enforces role-based access
func AdminJWTMiddleware(secret []byte, requiredRoles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}

			claims, err := auth.ParseAdminToken(secret, tokenString)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			for _, required := range requiredRoles {
				if !auth.AnyHasPermission(claims.Roles, required) {
					utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
					return
				}
			}

			ctx := context.WithValue(r.Context(), AdminClaimsKey, claims)
			ctx = context.WithValue(ctx, AdminIDKey, claims.Subject)
			ctx = context.WithValue(ctx, AdminRolesKey, claims.Roles)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminClaims retrieves the admin claims from the request context
func GetAdminClaims(ctx context.Context) (*auth.AdminClaims, bool) {
	claims, ok := ctx.Value(AdminClaimsKey).(*auth.AdminClaims)
	return claims, ok
}

// GetAdminID retrieves the admin subject from the request context
func GetAdminID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AdminIDKey).(string)
	return id, ok
}

// GetAdminRoles retrieves the admin roles from the request context
func GetAdminRoles(ctx context.Context) ([]string, bool) {
	roles, ok := ctx.Value(AdminRolesKey).([]string)
	return roles, ok
}
