package models

import (
	"time"
)

// ProviderType enumerates supported adapter variants.
type ProviderType string

const (
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeGoogle    ProviderType = "google"
	ProviderTypeDeepSeek  ProviderType = "deepseek"
	ProviderTypeGroq      ProviderType = "groq"
	ProviderTypeMistral   ProviderType = "mistral"
	ProviderTypeXAI       ProviderType = "xai"
)

// Provider represents one configured upstream model vendor
type Provider struct {
	Name                string       `db:"name" json:"name"`
	DisplayName         string       `db:"display_name" json:"display_name"`
	Models              StringList   `db:"models" json:"models"`
	Priority            int          `db:"priority" json:"priority"`
	RateLimitRPM        int          `db:"rate_limit_rpm" json:"rate_limit_rpm"`
	Enabled             bool         `db:"enabled" json:"enabled"`
	EncryptedCredential string       `db:"encrypted_credential" json:"-"`
	Config              JSONB        `db:"config" json:"config,omitempty"`
	Pricing             PricingTable `db:"pricing" json:"pricing,omitempty"`
	CreatedAt           time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updated_at"`
}

// AdapterType returns the adapter variant serving this provider.
// It defaults to the provider name unless config.adapter says otherwise.
func (p *Provider) AdapterType() string {
	if t := p.Config.String("adapter"); t != "" {
		return t
	}
	return p.Name
}

// Supports reports whether the provider lists the model
func (p *Provider) Supports(model string) bool {
	return p.Models.Contains(model)
}

// DefaultModel is the first listed model, used when the caller names none
func (p *Provider) DefaultModel() string {
	if len(p.Models) == 0 {
		return ""
	}
	return p.Models[0]
}
