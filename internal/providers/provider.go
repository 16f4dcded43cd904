package providers

import (
	"context"
	"strings"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

// jsonModeDirective is appended to the system instruction when the caller asks for JSON output
const jsonModeDirective = "Respond only with a single valid JSON document. Do not wrap it in markdown or add commentary."

// Request is the vendor-neutral generation request handed to an adapter.
// Model is already resolved by the dispatcher; adapters fall back to their
// default model only when it is empty.
type Request struct {
	Prompt      string
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// Provider is implemented by each vendor adapter (OpenAI, Anthropic, Google, ...).
type Provider interface {
	// Name returns the configured provider name this adapter serves
	Name() string

	// Type returns the adapter variant (openai, anthropic, google, groq, ...)
	Type() string

	// Generate performs one completion call. Failures are *Error values.
	Generate(ctx context.Context, req Request) (*models.GenerationResult, error)

	// ValidateCredentials checks if the provider credentials are valid
	ValidateCredentials(ctx context.Context) error

	// Close performs cleanup when the provider is no longer needed
	Close() error
}

// ProviderConfig holds configuration for creating a provider instance
type ProviderConfig struct {
	Name       string
	Type       string
	Credential string         // decrypted credential
	Config     map[string]any // additional configuration (base_url, ...)
}

// Factory creates provider instances based on type and configuration
type Factory interface {
	// CreateProvider creates a new provider instance
	CreateProvider(config ProviderConfig) (Provider, error)

	// SupportedTypes returns the list of supported provider types
	SupportedTypes() []string
}

// systemInstruction returns the effective system prompt, with the JSON
// directive appended in JSON mode.
func systemInstruction(req Request) string {
	if !req.JSONMode {
		return req.System
	}
	if strings.TrimSpace(req.System) == "" {
		return jsonModeDirective
	}
	return req.System + "\n\n" + jsonModeDirective
}

// configString reads a string option from a provider config map
func configString(config map[string]any, key string) string {
	if v, ok := config[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
