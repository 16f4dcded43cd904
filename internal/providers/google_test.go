package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleProvider_Generate(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-pro:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "{\"a\":"}, {"text": "1}"}]}}],
			"usageMetadata": {"promptTokenCount": 9, "candidatesTokenCount": 5},
			"modelVersion": "gemini-1.5-pro-002"
		}`))
	}))
	defer server.Close()

	p, err := NewGoogleProvider(ProviderConfig{
		Name:       "google",
		Credential: "g-key",
		Config:     map[string]any{"base_url": server.URL},
	})
	require.NoError(t, err)

	res, err := p.Generate(context.Background(), Request{
		Prompt:    "json please",
		System:    "you are a tool",
		Model:     "gemini-1.5-pro",
		MaxTokens: 100,
		JSONMode:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"a":1}`, res.Content)
	assert.Equal(t, 9, res.InputTokens)
	assert.Equal(t, 5, res.OutputTokens)
	assert.Equal(t, "gemini-1.5-pro-002", res.Model)

	genCfg := captured["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", genCfg["responseMimeType"])
	assert.Equal(t, float64(100), genCfg["maxOutputTokens"])

	sys := captured["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)
	assert.Contains(t, sys["text"], "you are a tool")
}

func TestGoogleProvider_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer server.Close()

	p, err := NewGoogleProvider(ProviderConfig{Credential: "k", Config: map[string]any{"base_url": server.URL}})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), Request{Prompt: "x"})
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, pe.StatusCode)
}
