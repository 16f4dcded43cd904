package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

const (
	googleDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	googleDefaultModel   = "gemini-1.5-flash"
)

// GoogleProvider implements the Gemini generateContent API
type GoogleProvider struct {
	name         string
	baseURL      string
	defaultModel string
	http         *httpCaller
}

// NewGoogleProvider creates a new Gemini provider instance
func NewGoogleProvider(config ProviderConfig) (Provider, error) {
	if config.Credential == "" {
		return nil, fmt.Errorf("api key is required for google provider")
	}

	baseURL := googleDefaultBaseURL
	if u := configString(config.Config, "base_url"); u != "" {
		baseURL = u
	}
	defaultModel := googleDefaultModel
	if model := configString(config.Config, "default_model"); model != "" {
		defaultModel = model
	}
	name := config.Name
	if name == "" {
		name = string(models.ProviderTypeGoogle)
	}

	return &GoogleProvider{
		name:         name,
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		http: &httpCaller{
			provider:  name,
			client:    newHTTPClient(),
			keyHeader: "x-goog-api-key",
			apiKey:    config.Credential,
		},
	}, nil
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return p.name
}

// Type returns the provider type
func (p *GoogleProvider) Type() string {
	return string(models.ProviderTypeGoogle)
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

// Generate sends a generateContent request
func (p *GoogleProvider) Generate(ctx context.Context, req Request) (*models.GenerationResult, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}
	if system := systemInstruction(req); system != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	if req.JSONMode {
		payload.GenerationConfig.ResponseMimeType = "application/json"
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, url.PathEscape(model))
	body, err := p.http.postJSON(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}

	parts := gjson.GetBytes(body, "candidates.0.content.parts.#.text")
	if !parts.Exists() {
		return nil, newDecodeError(p.name, "response has no candidates")
	}
	var texts []string
	for _, t := range parts.Array() {
		texts = append(texts, t.String())
	}

	usage := gjson.GetBytes(body, "usageMetadata")
	return &models.GenerationResult{
		Content:      strings.Join(texts, ""),
		InputTokens:  firstInt(usage, "promptTokenCount"),
		OutputTokens: firstInt(usage, "candidatesTokenCount"),
		Model:        stringOr(gjson.GetBytes(body, "modelVersion"), model),
		Provider:     p.name,
	}, nil
}

// ValidateCredentials validates the API key by listing models
func (p *GoogleProvider) ValidateCredentials(ctx context.Context) error {
	return p.http.get(ctx, p.baseURL+"/models")
}

// Close cleans up resources
func (p *GoogleProvider) Close() error {
	p.http.client.CloseIdleConnections()
	return nil
}
