package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ServiceKeyHeader carries the shared secret of internal callers
const ServiceKeyHeader = "X-Service-Key"

// ServiceKeyMatches compares keys in constant time. An empty expected key
// matches nothing.
func ServiceKeyMatches(expected, provided string) bool {
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

// CredentialFromRequest returns the header value, falling back to a bearer token
func CredentialFromRequest(r *http.Request, header string) string {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}
