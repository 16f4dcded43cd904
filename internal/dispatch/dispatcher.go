// Package dispatch routes one generation request across the configured
// providers: override resolution, cache lookup, rate limiting, failover
// and ledger bookkeeping.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fahdr/ecomm-sub005/internal/cache"
	"github.com/fahdr/ecomm-sub005/internal/models"
	"github.com/fahdr/ecomm-sub005/internal/providers"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultCacheTTL       = 5 * time.Minute
	DefaultMaxTokens      = 1024
)

// Registry is the read side of the provider registry
type Registry interface {
	Lookup(name string) (*providers.Entry, bool)
	Enabled() []*providers.Entry
	Candidates(model string) []*providers.Entry
}

// OverrideStore resolves a customer's pinned provider; nil means none
type OverrideStore interface {
	Lookup(ctx context.Context, userID string) (*models.CustomerOverride, error)
}

// RateLimiter admits calls per provider per minute
type RateLimiter interface {
	Admit(ctx context.Context, provider string, rpm int) (bool, error)
}

// UsageRecorder appends ledger entries without reporting failures
type UsageRecorder interface {
	Record(ctx context.Context, entry *models.UsageLogEntry)
}

// Config tunes the dispatcher
type Config struct {
	RequestTimeout   time.Duration // per provider call
	CacheTTL         time.Duration
	DefaultMaxTokens int
}

// Response is a generation result with its accounting
type Response struct {
	models.GenerationResult
	CostUSD   float64 `json:"cost_usd"`
	Cached    bool    `json:"cached"`
	LatencyMS int64   `json:"latency_ms"`
}

// candidate is one provider to try with the model it should serve
type candidate struct {
	entry *providers.Entry
	model string
}

// attemptOutcome is the verdict on a single provider attempt
type attemptOutcome int

const (
	outcomeSuccess attemptOutcome = iota
	outcomeRetryable
	outcomeTerminal
	outcomeRefused
)

// Dispatcher serves generation requests. It is safe for concurrent use.
type Dispatcher struct {
	registry  Registry
	overrides OverrideStore
	limiter   RateLimiter
	cache     cache.Cache
	ledger    UsageRecorder
	cfg       Config
	logger    *utils.Logger
}

// NewDispatcher wires the dispatcher. Nil limiter and cache disable those steps.
func NewDispatcher(registry Registry, overrides OverrideStore, limiter RateLimiter, c cache.Cache, ledger UsageRecorder, cfg Config) *Dispatcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = DefaultMaxTokens
	}
	if c == nil {
		c = cache.NewNoopCache()
	}
	return &Dispatcher{
		registry:  registry,
		overrides: overrides,
		limiter:   limiter,
		cache:     c,
		ledger:    ledger,
		cfg:       cfg,
		logger:    utils.NewLogger("dispatcher"),
	}
}

// Generate serves one request. Failures are *Error values.
func (d *Dispatcher) Generate(ctx context.Context, req models.GenerationRequest) (*Response, error) {
	start := time.Now()
	if req.MaxTokens <= 0 {
		req.MaxTokens = d.cfg.DefaultMaxTokens
	}

	candidates, pinned, err := d.resolve(ctx, &req)
	if err != nil {
		d.recordFailure(ctx, &req, "", req.Model, start, err)
		return nil, err
	}

	fingerprint := cache.Fingerprint(&req)
	if pinned {
		c := candidates[0]
		fingerprint = cache.RouteFingerprint(&req, c.entry.Config.Name+"/"+c.model)
	}
	if resp := d.fromCache(ctx, &req, fingerprint, start); resp != nil {
		return resp, nil
	}

	var (
		last    *candidate
		lastErr error
		invoked bool
	)
	for i := range candidates {
		c := &candidates[i]

		result, outcome, attemptErr := d.attempt(ctx, &req, c)
		switch outcome {
		case outcomeSuccess:
			return d.succeed(ctx, &req, c, result, fingerprint, start), nil

		case outcomeTerminal:
			err := newError(ErrProviderRejected, c.entry.Config.Name, attemptErr.Error(), errors.Join(ErrProviderTerminal, attemptErr))
			d.recordFailure(ctx, &req, c.entry.Config.Name, c.model, start, err)
			return nil, err

		case outcomeRetryable:
			invoked = true
			last, lastErr = c, errors.Join(ErrProviderTransient, attemptErr)
			d.logger.Warn("Provider failed, trying next",
				"provider", c.entry.Config.Name, "model", c.model, "error", attemptErr)

		case outcomeRefused:
			if !invoked {
				last, lastErr = c, ErrRateLimited
			}
			d.logger.Debug("Provider rate limited, skipping", "provider", c.entry.Config.Name)
		}
	}

	var exhausted *Error
	if invoked {
		exhausted = newError(ErrProviderRejected, last.entry.Config.Name, "all providers failed", lastErr)
	} else {
		exhausted = newError(ErrNoProviderAvailable, "", "all providers are rate limited", lastErr)
	}
	d.recordFailure(ctx, &req, last.entry.Config.Name, last.model, start, exhausted)
	return nil, exhausted
}

// resolve builds the ordered candidate list. A live override is the only
// candidate and pins the route; otherwise every enabled provider serving
// the model is.
func (d *Dispatcher) resolve(ctx context.Context, req *models.GenerationRequest) ([]candidate, bool, error) {
	enabled := d.registry.Enabled()
	if len(enabled) == 0 {
		return nil, false, newError(ErrConfiguration, "", "", nil)
	}

	if c, ok := d.overrideCandidate(ctx, req); ok {
		return []candidate{c}, true, nil
	}

	if req.Model == "" {
		out := make([]candidate, 0, len(enabled))
		for _, e := range enabled {
			out = append(out, candidate{entry: e, model: e.Config.DefaultModel()})
		}
		return out, false, nil
	}

	entries := d.registry.Candidates(req.Model)
	if len(entries) == 0 {
		return nil, false, newError(ErrNoProviderAvailable, "", fmt.Sprintf("no provider serves model %q", req.Model), nil)
	}
	out := make([]candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, candidate{entry: e, model: req.Model})
	}
	return out, false, nil
}

func (d *Dispatcher) overrideCandidate(ctx context.Context, req *models.GenerationRequest) (candidate, bool) {
	if d.overrides == nil || req.UserID == "" {
		return candidate{}, false
	}

	override, err := d.overrides.Lookup(ctx, req.UserID)
	if err != nil {
		d.logger.Error("Override lookup failed, using default routing", "user_id", req.UserID, "error", err)
		return candidate{}, false
	}
	if override == nil {
		return candidate{}, false
	}

	entry, ok := d.registry.Lookup(override.ProviderName)
	if !ok {
		d.logger.Debug("Override provider not enabled, ignoring", "user_id", req.UserID, "provider", override.ProviderName)
		return candidate{}, false
	}

	model := override.ModelName
	if model == "" {
		model = req.Model
	}
	if model == "" {
		model = entry.Config.DefaultModel()
	}
	return candidate{entry: entry, model: model}, true
}

func (d *Dispatcher) fromCache(ctx context.Context, req *models.GenerationRequest, fingerprint string, start time.Time) *Response {
	result, ok, err := d.cache.Get(ctx, fingerprint)
	if err != nil {
		d.logger.Warn("Cache lookup failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	resp := &Response{
		GenerationResult: *result,
		Cached:           true,
		LatencyMS:        time.Since(start).Milliseconds(),
	}
	d.record(ctx, &models.UsageLogEntry{
		UserID:       req.UserID,
		ServiceName:  req.ServiceName,
		TaskType:     req.TaskType,
		ProviderName: result.Provider,
		Model:        result.Model,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		Cached:       true,
		LatencyMS:    resp.LatencyMS,
	})
	return resp
}

// attempt makes one admitted provider call, detached from caller cancellation
func (d *Dispatcher) attempt(ctx context.Context, req *models.GenerationRequest, c *candidate) (*models.GenerationResult, attemptOutcome, error) {
	cfg := c.entry.Config

	if d.limiter != nil {
		allowed, err := d.limiter.Admit(ctx, cfg.Name, cfg.RateLimitRPM)
		if err != nil {
			d.logger.Warn("Rate limiter unavailable, admitting call", "provider", cfg.Name, "error", err)
		} else if !allowed {
			return nil, outcomeRefused, ErrRateLimited
		}
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.RequestTimeout)
	defer cancel()

	result, err := c.entry.Adapter.Generate(callCtx, providers.Request{
		Prompt:      req.Prompt,
		System:      req.System,
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		JSONMode:    req.JSONMode,
	})
	if err == nil {
		return result, outcomeSuccess, nil
	}

	if pe, ok := providers.AsError(err); ok && !pe.Retryable {
		return nil, outcomeTerminal, err
	}
	return nil, outcomeRetryable, err
}

func (d *Dispatcher) succeed(ctx context.Context, req *models.GenerationRequest, c *candidate, result *models.GenerationResult, fingerprint string, start time.Time) *Response {
	cfg := c.entry.Config
	if result.Provider == "" {
		result.Provider = cfg.Name
	}
	if result.Model == "" {
		result.Model = c.model
	}

	resp := &Response{
		GenerationResult: *result,
		CostUSD:          cfg.Pricing.Cost(result.Model, result.InputTokens, result.OutputTokens),
		LatencyMS:        time.Since(start).Milliseconds(),
	}

	d.record(ctx, &models.UsageLogEntry{
		UserID:       req.UserID,
		ServiceName:  req.ServiceName,
		TaskType:     req.TaskType,
		ProviderName: result.Provider,
		Model:        result.Model,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		CostUSD:      resp.CostUSD,
		LatencyMS:    resp.LatencyMS,
	})

	if err := d.cache.Put(context.WithoutCancel(ctx), fingerprint, result, d.cfg.CacheTTL); err != nil {
		d.logger.Warn("Failed to cache result", "provider", result.Provider, "error", err)
	}
	return resp
}

func (d *Dispatcher) recordFailure(ctx context.Context, req *models.GenerationRequest, provider, model string, start time.Time, err error) {
	d.record(ctx, &models.UsageLogEntry{
		UserID:       req.UserID,
		ServiceName:  req.ServiceName,
		TaskType:     req.TaskType,
		ProviderName: provider,
		Model:        model,
		LatencyMS:    time.Since(start).Milliseconds(),
		Error:        utils.StringPtr(err.Error()),
	})
}

func (d *Dispatcher) record(ctx context.Context, entry *models.UsageLogEntry) {
	if d.ledger == nil {
		return
	}
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()
	d.ledger.Record(context.WithoutCancel(ctx), entry)
}
