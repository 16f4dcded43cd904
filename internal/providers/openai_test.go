package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewOpenAIProvider(ProviderConfig{
		Name:       "openai",
		Type:       "openai",
		Credential: "sk-test",
		Config:     map[string]any{"base_url": server.URL},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestOpenAIProvider_Generate(t *testing.T) {
	var captured map[string]any
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-mini-2024-07-18",
			"choices": [{"message": {"role": "assistant", "content": "{\"ok\":true}"}}],
			"usage": {"prompt_tokens": 11, "completion_tokens": 7}
		}`))
	})

	res, err := p.Generate(context.Background(), Request{
		Prompt:      "say ok",
		System:      "be terse",
		Model:       "gpt-4o-mini",
		MaxTokens:   64,
		Temperature: 0.2,
		JSONMode:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, res.Content)
	assert.Equal(t, 11, res.InputTokens)
	assert.Equal(t, 7, res.OutputTokens)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", res.Model)
	assert.Equal(t, "openai", res.Provider)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	assert.Equal(t, float64(64), captured["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, captured["response_format"])

	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], "be terse")
	assert.Contains(t, system["content"], jsonModeDirective)
	assert.Equal(t, "say ok", messages[1].(map[string]any)["content"])
}

func TestOpenAIProvider_DefaultsAndAlternateUsageFields(t *testing.T) {
	var captured map[string]any
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}],"usage":{"input_tokens":3,"output_tokens":2}}`))
	})

	res, err := p.Generate(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)

	assert.Equal(t, openAIDefaultModel, captured["model"])
	assert.Nil(t, captured["response_format"])
	assert.Len(t, captured["messages"], 1)
	assert.Equal(t, openAIDefaultModel, res.Model)
	assert.Equal(t, 3, res.InputTokens)
	assert.Equal(t, 2, res.OutputTokens)
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		message   string
	}{
		{name: "rate limited", status: 429, body: `{"error":{"message":"slow down"}}`, retryable: true, message: "slow down"},
		{name: "server error", status: 500, body: `oops`, retryable: true, message: "oops"},
		{name: "unavailable", status: 503, body: ``, retryable: true, message: "Service Unavailable"},
		{name: "unauthorized", status: 401, body: `{"error":{"message":"bad key"}}`, retryable: false, message: "bad key"},
		{name: "bad request", status: 400, body: `{"error":"invalid model"}`, retryable: false, message: "invalid model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := p.Generate(context.Background(), Request{Prompt: "x"})
			require.Error(t, err)

			pe, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.retryable, pe.Retryable)
			assert.Equal(t, tt.message, pe.Message)
			assert.Equal(t, "openai", pe.Provider)
		})
	}
}

func TestOpenAIProvider_TimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Generate(ctx, Request{Prompt: "slow"})
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.True(t, pe.Retryable)
	assert.Equal(t, http.StatusGatewayTimeout, pe.StatusCode)
}

func TestOpenAIProvider_MalformedSuccessBody(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list"}`))
	})

	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.True(t, pe.Retryable)
	assert.Equal(t, http.StatusBadGateway, pe.StatusCode)
}

func TestOpenAIProvider_ValidateCredentials(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	assert.NoError(t, p.ValidateCredentials(context.Background()))
}

func TestNewOpenAIProvider_RequiresCredential(t *testing.T) {
	_, err := NewOpenAIProvider(ProviderConfig{Name: "openai"})
	assert.Error(t, err)
}
