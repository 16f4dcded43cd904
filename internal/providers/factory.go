package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

// ProviderFactory is the lookup table from adapter type to constructor
type ProviderFactory struct {
	mu       sync.RWMutex
	creators map[string]ProviderCreator
}

// ProviderCreator is a function that creates a provider instance
type ProviderCreator func(config ProviderConfig) (Provider, error)

// NewProviderFactory creates a new provider factory with the built-in adapters registered
func NewProviderFactory() *ProviderFactory {
	f := &ProviderFactory{
		creators: make(map[string]ProviderCreator),
	}

	f.Register(string(models.ProviderTypeOpenAI), NewOpenAIProvider)
	f.Register(string(models.ProviderTypeAnthropic), NewAnthropicProvider)
	f.Register(string(models.ProviderTypeGoogle), NewGoogleProvider)
	f.Register(string(models.ProviderTypeDeepSeek), NewDeepSeekProvider)
	f.Register(string(models.ProviderTypeGroq), NewGroqProvider)
	f.Register(string(models.ProviderTypeMistral), NewMistralProvider)
	f.Register(string(models.ProviderTypeXAI), NewXAIProvider)

	return f
}

// Register registers a provider creator for a specific type
func (f *ProviderFactory) Register(providerType string, creator ProviderCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[providerType] = creator
}

// CreateProvider creates a new provider instance based on the configuration
func (f *ProviderFactory) CreateProvider(config ProviderConfig) (Provider, error) {
	f.mu.RLock()
	creator, exists := f.creators[config.Type]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported provider type: %s", config.Type)
	}

	provider, err := creator(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s (%s): %w", config.Name, config.Type, err)
	}

	return provider, nil
}

// Supports reports whether an adapter is registered for the type
func (f *ProviderFactory) Supports(providerType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.creators[providerType]
	return ok
}

// SupportedTypes returns the sorted list of supported provider types
func (f *ProviderFactory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for t := range f.creators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
