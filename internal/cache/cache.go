// Package cache deduplicates identical generation requests for a bounded time.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/fahdr/ecomm-sub005/internal/models"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// KeyPrefix namespaces response cache keys
const KeyPrefix = "llmcache:"

// Cache stores generation results by request fingerprint
type Cache interface {
	// Get returns the cached result, or ok=false on a miss
	Get(ctx context.Context, fingerprint string) (*models.GenerationResult, bool, error)

	// Put stores result for ttl
	Put(ctx context.Context, fingerprint string, result *models.GenerationResult, ttl time.Duration) error
}

// fingerprintFields is every request attribute that shapes the model output.
// Caller identity is deliberately absent so identical prompts share one entry.
type fingerprintFields struct {
	Prompt      string  `json:"prompt"`
	System      string  `json:"system"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	JSONMode    bool    `json:"json_mode"`

	// Route pins the key to one provider and model
	Route string `json:"route,omitempty"`
}

// Fingerprint returns the cache key for req
func Fingerprint(req *models.GenerationRequest) string {
	return RouteFingerprint(req, "")
}

// RouteFingerprint returns the cache key for req served on a pinned route.
// Results cached under a route never answer unpinned requests and vice versa.
func RouteFingerprint(req *models.GenerationRequest, route string) string {
	fields := fingerprintFields{
		Prompt:      req.Prompt,
		System:      req.System,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		JSONMode:    req.JSONMode,
		Route:       route,
	}

	digest, err := utils.HashJSON(fields)
	if err != nil {
		digest = utils.HashString(fmt.Sprintf("%#v", fields))
	}
	return KeyPrefix + digest
}

// NoopCache never hits
type NoopCache struct{}

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (NoopCache) Get(ctx context.Context, fingerprint string) (*models.GenerationResult, bool, error) {
	return nil, false, nil
}

func (NoopCache) Put(ctx context.Context, fingerprint string, result *models.GenerationResult, ttl time.Duration) error {
	return nil
}
