package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

// ProviderSeed is one provider entry of the YAML seed file:
//
//	providers:
//	  - name: openai
//	    models: [gpt-4o-mini, gpt-4o]
//	    priority: 1
//	    rate_limit_rpm: 500
//	    credential_env: OPENAI_API_KEY
//	    pricing:
//	      gpt-4o-mini: {input_per_1k: 0.00015, output_per_1k: 0.0006}
type ProviderSeed struct {
	Name          string                       `yaml:"name"`
	DisplayName   string                       `yaml:"display_name"`
	Adapter       string                       `yaml:"adapter"`
	BaseURL       string                       `yaml:"base_url"`
	Models        []string                     `yaml:"models"`
	Priority      int                          `yaml:"priority"`
	RateLimitRPM  int                          `yaml:"rate_limit_rpm"`
	Enabled       *bool                        `yaml:"enabled"`
	CredentialEnv string                       `yaml:"credential_env"`
	Config        map[string]any               `yaml:"config"`
	Pricing       map[string]ProviderSeedPrice `yaml:"pricing"`
}

// ProviderSeedPrice is the USD price per thousand tokens
type ProviderSeedPrice struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

type providersFile struct {
	Providers []ProviderSeed `yaml:"providers"`
}

// LoadProviderSeeds parses and validates a provider seed file
func LoadProviderSeeds(path string) ([]ProviderSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}
	return ParseProviderSeeds(data)
}

// ParseProviderSeeds parses and validates seed YAML
func ParseProviderSeeds(data []byte) ([]ProviderSeed, error) {
	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	seen := make(map[string]bool, len(file.Providers))
	for i, p := range file.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("provider #%d: name is required", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("provider %q is listed twice", name)
		}
		seen[name] = true
		if len(p.Models) == 0 {
			return nil, fmt.Errorf("provider %q: at least one model is required", name)
		}
		file.Providers[i].Name = name
	}
	return file.Providers, nil
}

// Credential reads the API key from the environment variable the seed names
func (s ProviderSeed) Credential() string {
	if s.CredentialEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(s.CredentialEnv))
}

// ToProvider builds the provider model. The credential is left for the
// caller to encrypt and set.
func (s ProviderSeed) ToProvider() *models.Provider {
	cfg := models.JSONB{}
	for k, v := range s.Config {
		cfg[k] = v
	}
	if s.Adapter != "" {
		cfg["adapter"] = s.Adapter
	}
	if s.BaseURL != "" {
		cfg["base_url"] = s.BaseURL
	}

	pricing := models.PricingTable{}
	for model, price := range s.Pricing {
		pricing[model] = models.ModelPrice{InputPer1K: price.InputPer1K, OutputPer1K: price.OutputPer1K}
	}

	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}

	displayName := s.DisplayName
	if displayName == "" {
		displayName = s.Name
	}

	return &models.Provider{
		Name:         s.Name,
		DisplayName:  displayName,
		Models:       models.StringList(s.Models),
		Priority:     s.Priority,
		RateLimitRPM: s.RateLimitRPM,
		Enabled:      enabled,
		Config:       cfg,
		Pricing:      pricing,
	}
}
