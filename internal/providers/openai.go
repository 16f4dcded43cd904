package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o-mini"
)

// OpenAIProvider speaks the OpenAI chat-completions protocol. Vendors that
// share the protocol reuse it with a different base URL and default model.
type OpenAIProvider struct {
	name         string
	typ          string
	baseURL      string
	defaultModel string
	http         *httpCaller
}

// NewOpenAIProvider creates a new OpenAI provider instance
func NewOpenAIProvider(config ProviderConfig) (Provider, error) {
	return newOpenAICompatible(config, string(models.ProviderTypeOpenAI), openAIDefaultBaseURL, openAIDefaultModel)
}

// newOpenAICompatible builds an adapter for any vendor exposing /chat/completions
func newOpenAICompatible(config ProviderConfig, typ, defaultBaseURL, defaultModel string) (*OpenAIProvider, error) {
	if config.Credential == "" {
		return nil, fmt.Errorf("api key is required for %s provider", typ)
	}

	baseURL := defaultBaseURL
	if url := configString(config.Config, "base_url"); url != "" {
		baseURL = url
	}
	if model := configString(config.Config, "default_model"); model != "" {
		defaultModel = model
	}

	name := config.Name
	if name == "" {
		name = typ
	}

	return &OpenAIProvider{
		name:         name,
		typ:          typ,
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		http: &httpCaller{
			provider:  name,
			client:    newHTTPClient(),
			keyHeader: "Authorization",
			keyPrefix: "Bearer ",
			apiKey:    config.Credential,
		},
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Type returns the provider type
func (p *OpenAIProvider) Type() string {
	return p.typ
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

// Generate sends a chat completion request
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*models.GenerationResult, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	payload := openAIChatRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if system := systemInstruction(req); system != "" {
		payload.Messages = append(payload.Messages, openAIMessage{Role: "system", Content: system})
	}
	payload.Messages = append(payload.Messages, openAIMessage{Role: "user", Content: req.Prompt})
	if req.JSONMode {
		payload.ResponseFormat = map[string]string{"type": "json_object"}
	}

	body, err := p.http.postJSON(ctx, p.baseURL+"/chat/completions", payload)
	if err != nil {
		return nil, err
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return nil, newDecodeError(p.name, "response has no choices")
	}

	usage := gjson.GetBytes(body, "usage")
	return &models.GenerationResult{
		Content:      content.String(),
		InputTokens:  firstInt(usage, "prompt_tokens", "input_tokens"),
		OutputTokens: firstInt(usage, "completion_tokens", "output_tokens"),
		Model:        stringOr(gjson.GetBytes(body, "model"), model),
		Provider:     p.name,
	}, nil
}

// ValidateCredentials lists models, which every compatible vendor supports
func (p *OpenAIProvider) ValidateCredentials(ctx context.Context) error {
	return p.http.get(ctx, p.baseURL+"/models")
}

// Close cleans up resources
func (p *OpenAIProvider) Close() error {
	p.http.client.CloseIdleConnections()
	return nil
}

// firstInt returns the first present integer field of obj, or 0
func firstInt(obj gjson.Result, fields ...string) int {
	for _, f := range fields {
		if v := obj.Get(f); v.Exists() {
			return int(v.Int())
		}
	}
	return 0
}

// stringOr returns r as a string, or fallback when r is missing or empty
func stringOr(r gjson.Result, fallback string) string {
	if s := r.String(); s != "" {
		return s
	}
	return fallback
}
