package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahdr/ecomm-sub005/internal/auth"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

var testSecret = []byte("middleware-test-secret")

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestServiceKeyMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"service key header", map[string]string{"X-Service-Key": "s3cret"}, http.StatusOK},
		{"bearer token", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"missing", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-Service-Key": "guess"}, http.StatusUnauthorized},
		{"wrong bearer", map[string]string{"Authorization": "Bearer guess"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := ServiceKeyMiddleware("s3cret")(okHandler(&called))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.want == http.StatusOK, called)
		})
	}
}

func TestServiceKeyMiddleware_EmptyConfiguredKeyRejectsAll(t *testing.T) {
	called := false
	handler := ServiceKeyMiddleware("")(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Service-Key", "anything")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, called)
}

func adminToken(t *testing.T, roles ...auth.Role) string {
	t.Helper()
	token, _, err := auth.IssueAdminToken(testSecret, "ops@example.com", roles, time.Hour)
	require.NoError(t, err)
	return token
}

func TestAdminJWTMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		required []auth.Role
		want     int
	}{
		{"admin on admin route", adminToken(t, auth.RoleAdmin), []auth.Role{auth.RoleAdmin}, http.StatusOK},
		{"admin on viewer route", adminToken(t, auth.RoleAdmin), []auth.Role{auth.RoleViewer}, http.StatusOK},
		{"viewer on viewer route", adminToken(t, auth.RoleViewer), []auth.Role{auth.RoleViewer}, http.StatusOK},
		{"viewer on admin route", adminToken(t, auth.RoleViewer), []auth.Role{auth.RoleAdmin}, http.StatusForbidden},
		{"no role requirement", adminToken(t, auth.RoleViewer), nil, http.StatusOK},
		{"missing token", "", nil, http.StatusUnauthorized},
		{"bad token", "not-a-jwt", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seenID string
			handler := AdminJWTMiddleware(testSecret, tt.required...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seenID, _ = GetAdminID(r.Context())
				claims, ok := GetAdminClaims(r.Context())
				assert.True(t, ok)
				roles, ok := GetAdminRoles(r.Context())
				assert.True(t, ok)
				assert.Equal(t, claims.Roles, roles)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/admin/providers", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "ops@example.com", seenID)
			}
		})
	}
}

func TestRequestLogMiddleware(t *testing.T) {
	var seen string
	handler := RequestLogMiddleware(utils.NewLogger("test"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "given-id", seen)
}
