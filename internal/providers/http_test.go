package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPCaller_AppliesKeyHeader(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		prefix   string
		expected string
	}{
		{name: "bearer", header: "Authorization", prefix: "Bearer ", expected: "Bearer k-1"},
		{name: "bare key", header: "x-api-key", expected: "k-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.expected, r.Header.Get(tt.header))
				assert.Equal(t, "yes", r.Header.Get("X-Extra"))
				_, _ = w.Write([]byte(`{}`))
			}))
			defer server.Close()

			c := &httpCaller{
				provider:  "test",
				client:    server.Client(),
				headers:   map[string]string{"X-Extra": "yes"},
				keyHeader: tt.header,
				keyPrefix: tt.prefix,
				apiKey:    "k-1",
			}
			body, err := c.postJSON(context.Background(), server.URL, map[string]string{"a": "b"})
			require.NoError(t, err)
			assert.JSONEq(t, `{}`, string(body))
		})
	}
}

func TestHTTPCaller_EmptyKeyIsUnauthorized(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	c := &httpCaller{provider: "test", client: server.Client(), keyHeader: "x-api-key"}
	err := c.get(context.Background(), server.URL)
	require.Error(t, err)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.False(t, pe.Retryable)
	assert.False(t, called)
}
