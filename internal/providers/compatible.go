package providers

import "github.com/fahdr/ecomm-sub005/internal/models"

// Vendors speaking the OpenAI chat-completions protocol. Each one only
// changes the endpoint and the default model.

// NewDeepSeekProvider creates a DeepSeek adapter
func NewDeepSeekProvider(config ProviderConfig) (Provider, error) {
	return newOpenAICompatible(config, string(models.ProviderTypeDeepSeek), "https://api.deepseek.com/v1", "deepseek-chat")
}

// NewGroqProvider creates a Groq adapter
func NewGroqProvider(config ProviderConfig) (Provider, error) {
	return newOpenAICompatible(config, string(models.ProviderTypeGroq), "https://api.groq.com/openai/v1", "llama-3.3-70b-versatile")
}

// NewMistralProvider creates a Mistral adapter
func NewMistralProvider(config ProviderConfig) (Provider, error) {
	return newOpenAICompatible(config, string(models.ProviderTypeMistral), "https://api.mistral.ai/v1", "mistral-large-latest")
}

// NewXAIProvider creates an xAI (Grok) adapter
func NewXAIProvider(config ProviderConfig) (Provider, error) {
	return newOpenAICompatible(config, string(models.ProviderTypeXAI), "https://api.x.ai/v1", "grok-2-latest")
}
