package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicDefaultModel   = "claude-3-5-haiku-latest"
	anthropicVersion        = "2023-06-01"

	// anthropicDefaultMaxTokens is used when the caller sets none; the API requires the field
	anthropicDefaultMaxTokens = 1024

	// the Messages API rejects temperatures above 1
	anthropicMaxTemperature = 1.0
)

// AnthropicProvider implements the Messages API
type AnthropicProvider struct {
	name         string
	baseURL      string
	defaultModel string
	http         *httpCaller
}

// NewAnthropicProvider creates a new Anthropic provider instance
func NewAnthropicProvider(config ProviderConfig) (Provider, error) {
	if config.Credential == "" {
		return nil, fmt.Errorf("api key is required for anthropic provider")
	}

	baseURL := anthropicDefaultBaseURL
	if url := configString(config.Config, "base_url"); url != "" {
		baseURL = url
	}
	defaultModel := anthropicDefaultModel
	if model := configString(config.Config, "default_model"); model != "" {
		defaultModel = model
	}
	name := config.Name
	if name == "" {
		name = string(models.ProviderTypeAnthropic)
	}

	return &AnthropicProvider{
		name:         name,
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		http: &httpCaller{
			provider:  name,
			client:    newHTTPClient(),
			keyHeader: "x-api-key",
			apiKey:    config.Credential,
			headers:   map[string]string{"anthropic-version": anthropicVersion},
		},
	}, nil
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return p.name
}

// Type returns the provider type
func (p *AnthropicProvider) Type() string {
	return string(models.ProviderTypeAnthropic)
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

// Generate sends a Messages API request
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*models.GenerationResult, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	temperature := req.Temperature
	if temperature > anthropicMaxTemperature {
		temperature = anthropicMaxTemperature
	}

	payload := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      systemInstruction(req),
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Temperature: temperature,
	}

	body, err := p.http.postJSON(ctx, p.baseURL+"/messages", payload)
	if err != nil {
		return nil, err
	}

	blocks := gjson.GetBytes(body, `content.#(type=="text")#.text`)
	if !blocks.Exists() {
		return nil, newDecodeError(p.name, "response has no content blocks")
	}
	var parts []string
	for _, b := range blocks.Array() {
		parts = append(parts, b.String())
	}

	usage := gjson.GetBytes(body, "usage")
	return &models.GenerationResult{
		Content:      strings.Join(parts, ""),
		InputTokens:  firstInt(usage, "input_tokens"),
		OutputTokens: firstInt(usage, "output_tokens"),
		Model:        stringOr(gjson.GetBytes(body, "model"), model),
		Provider:     p.name,
	}, nil
}

// ValidateCredentials validates the API key by listing models
func (p *AnthropicProvider) ValidateCredentials(ctx context.Context) error {
	return p.http.get(ctx, p.baseURL+"/models")
}

// Close cleans up resources
func (p *AnthropicProvider) Close() error {
	p.http.client.CloseIdleConnections()
	return nil
}
