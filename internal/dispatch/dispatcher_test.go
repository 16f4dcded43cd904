package dispatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahdr/ecomm-sub005/internal/cache"
	"github.com/fahdr/ecomm-sub005/internal/models"
	"github.com/fahdr/ecomm-sub005/internal/providers"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// fakeAdapter replays scripted results; an empty script succeeds
type fakeAdapter struct {
	name string

	mu       sync.Mutex
	errs     []error
	calls    int
	requests []providers.Request
	block    time.Duration
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Type() string { return "fake" }

func (f *fakeAdapter) Generate(ctx context.Context, req providers.Request) (*models.GenerationResult, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	block := f.block
	f.mu.Unlock()

	if block > 0 {
		select {
		case <-time.After(block):
		case <-ctx.Done():
			return nil, &providers.Error{Provider: f.name, Retryable: true, StatusCode: http.StatusGatewayTimeout, Message: "request timed out"}
		}
	}
	if err != nil {
		return nil, err
	}
	return &models.GenerationResult{
		Content:      "hello from " + f.name,
		InputTokens:  1000,
		OutputTokens: 500,
		Model:        req.Model,
		Provider:     f.name,
	}, nil
}

func (f *fakeAdapter) ValidateCredentials(ctx context.Context) error { return nil }
func (f *fakeAdapter) Close() error                                  { return nil }

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticSource struct {
	providers []*models.Provider
}

func (s *staticSource) List(ctx context.Context) ([]*models.Provider, error) {
	return s.providers, nil
}

type fakeOverrides struct {
	overrides map[string]*models.CustomerOverride
	err       error
}

func (f *fakeOverrides) Lookup(ctx context.Context, userID string) (*models.CustomerOverride, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.overrides[userID], nil
}

type fakeLimiter struct {
	refuse map[string]bool
	err    error
}

func (f *fakeLimiter) Admit(ctx context.Context, provider string, rpm int) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return !f.refuse[provider], nil
}

type recordingLedger struct {
	mu      sync.Mutex
	entries []*models.UsageLogEntry
}

func (r *recordingLedger) Record(ctx context.Context, entry *models.UsageLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingLedger) all() []*models.UsageLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.UsageLogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func testProvider(name string, priority int, modelNames ...string) *models.Provider {
	return &models.Provider{
		Name:         name,
		Models:       models.StringList(modelNames),
		Priority:     priority,
		RateLimitRPM: 60,
		Enabled:      true,
		Config:       models.JSONB{"adapter": "fake"},
		Pricing: models.PricingTable{
			models.PricingWildcard: {InputPer1K: 0.01, OutputPer1K: 0.02},
		},
	}
}

type harness struct {
	dispatcher *Dispatcher
	adapters   map[string]*fakeAdapter
	overrides  *fakeOverrides
	limiter    *fakeLimiter
	ledger     *recordingLedger
}

func newHarness(t *testing.T, configs ...*models.Provider) *harness {
	t.Helper()

	h := &harness{
		adapters:  make(map[string]*fakeAdapter),
		overrides: &fakeOverrides{overrides: map[string]*models.CustomerOverride{}},
		limiter:   &fakeLimiter{refuse: map[string]bool{}},
		ledger:    &recordingLedger{},
	}
	for _, p := range configs {
		h.adapters[p.Name] = &fakeAdapter{name: p.Name}
	}

	factory := providers.NewProviderFactory()
	factory.Register("fake", func(cfg providers.ProviderConfig) (providers.Provider, error) {
		return h.adapters[cfg.Name], nil
	})

	registry, err := providers.NewProviderRegistry(context.Background(), providers.RegistryConfig{
		Source:  &staticSource{providers: configs},
		Factory: factory,
	})
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	h.dispatcher = NewDispatcher(registry, h.overrides, h.limiter, cache.NewMemoryCache(100), h.ledger, Config{
		RequestTimeout: time.Second,
	})
	return h
}

func request(prompt, model string) models.GenerationRequest {
	return models.GenerationRequest{
		UserID:      "user-1",
		ServiceName: "storefront",
		TaskType:    "product_description",
		Prompt:      prompt,
		Model:       model,
		MaxTokens:   256,
		Temperature: 0.7,
	}
}

func TestGenerate_Success(t *testing.T) {
	h := newHarness(t, testProvider("openai", 1, "gpt-4o"))

	resp, err := h.dispatcher.Generate(context.Background(), request("hi", "gpt-4o"))
	require.NoError(t, err)

	assert.Equal(t, "hello from openai", resp.Content)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.False(t, resp.Cached)
	assert.InDelta(t, 0.02, resp.CostUSD, 1e-9)

	entries := h.ledger.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "openai", entries[0].ProviderName)
	assert.Equal(t, "storefront", entries[0].ServiceName)
	assert.False(t, entries[0].Cached)
	assert.Nil(t, entries[0].Error)
	assert.InDelta(t, resp.CostUSD, entries[0].CostUSD, 1e-9)
}

func TestGenerate_DeterministicOrder(t *testing.T) {
	h := newHarness(t,
		testProvider("zeta", 1, "m"),
		testProvider("alpha", 1, "m"),
		testProvider("first", 0, "m"),
	)
	h.adapters["first"].errs = []error{&providers.Error{Provider: "first", Retryable: true, StatusCode: 503}}
	h.adapters["alpha"].errs = []error{&providers.Error{Provider: "alpha", Retryable: true, StatusCode: 429}}

	resp, err := h.dispatcher.Generate(context.Background(), request("order", "m"))
	require.NoError(t, err)
	assert.Equal(t, "zeta", resp.Provider)

	assert.Equal(t, 1, h.adapters["first"].callCount())
	assert.Equal(t, 1, h.adapters["alpha"].callCount())
	assert.Equal(t, 1, h.adapters["zeta"].callCount())
	assert.Len(t, h.ledger.all(), 1)
}

func TestGenerate_OnlyProvidersServingModel(t *testing.T) {
	h := newHarness(t,
		testProvider("openai", 1, "gpt-4o"),
		testProvider("anthropic", 2, "claude-3"),
	)

	resp, err := h.dispatcher.Generate(context.Background(), request("hi", "claude-3"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Zero(t, h.adapters["openai"].callCount())
}

func TestGenerate_NoModelUsesProviderDefault(t *testing.T) {
	h := newHarness(t, testProvider("openai", 1, "gpt-4o-mini", "gpt-4o"))

	resp, err := h.dispatcher.Generate(context.Background(), request("hi", ""))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
}

func TestGenerate_AppliesDefaultMaxTokens(t *testing.T) {
	h := newHarness(t, testProvider("openai", 1, "gpt-4o"))

	req := request("hi", "gpt-4o")
	req.MaxTokens = 0
	_, err := h.dispatcher.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, h.adapters["openai"].requests, 1)
	assert.Equal(t, DefaultMaxTokens, h.adapters["openai"].requests[0].MaxTokens)
}

func TestGenerate_CacheHitSkipsProvider(t *testing.T) {
	h := newHarness(t, testProvider("openai", 1, "gpt-4o"))

	first, err := h.dispatcher.Generate(context.Background(), request("same prompt", "gpt-4o"))
	require.NoError(t, err)
	assert.False(t, first.Cached)

	other := request("same prompt", "gpt-4o")
	other.UserID = "user-2"
	other.ServiceName = "emails"
	second, err := h.dispatcher.Generate(context.Background(), other)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Content, second.Content)
	assert.Zero(t, second.CostUSD)
	assert.Equal(t, 1, h.adapters["openai"].callCount())

	entries := h.ledger.all()
	require.Len(t, entries, 2)
	assert.True(t, entries[1].Cached)
	assert.Zero(t, entries[1].CostUSD)
	assert.Equal(t, "user-2", entries[1].UserID)
	assert.Equal(t, "openai", entries[1].ProviderName)
}

func TestGenerate_TerminalErrorAborts(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusBadRequest} {
		h := newHarness(t, testProvider("openai", 1, "m"), testProvider("backup", 2, "m"))
		h.adapters["openai"].errs = []error{&providers.Error{Provider: "openai", StatusCode: status, Message: "nope"}}

		_, err := h.dispatcher.Generate(context.Background(), request("hi", "m"))
		require.Error(t, err)

		assert.ErrorIs(t, err, ErrProviderRejected)
		assert.ErrorIs(t, err, ErrProviderTerminal)
		assert.Equal(t, http.StatusBadGateway, StatusCode(err))
		assert.Zero(t, h.adapters["backup"].callCount(), "status %d must not fail over", status)

		entries := h.ledger.all()
		require.Len(t, entries, 1)
		assert.Contains(t, utils.StringPtrValue(entries[0].Error), "nope")
		assert.Equal(t, "openai", entries[0].ProviderName)
	}
}

func TestGenerate_SingleProviderServerError(t *testing.T) {
	h := newHarness(t, testProvider("openai", 1, "m"))
	h.adapters["openai"].errs = []error{&providers.Error{Provider: "openai", Retryable: true, StatusCode: 500}}

	_, err := h.dispatcher.Generate(context.Background(), request("hi", "m"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrProviderRejected)
	assert.ErrorIs(t, err, ErrProviderTransient)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "openai", de.Provider)

	entries := h.ledger.all()
	require.Len(t, entries, 1)
	assert.NotNil(t, entries[0].Error)
}

func TestGenerate_UntypedErrorIsRetryable(t *testing.T) {
	h := newHarness(t, testProvider("a", 1, "m"), testProvider("b", 2, "m"))
	h.adapters["a"].errs = []error{errors.New("connection reset")}

	resp, err := h.dispatcher.Generate(context.Background(), request("hi", "m"))
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Provider)
}

func TestGenerate_NoProviders(t *testing.T) {
	h := newHarness(t)

	_, err := h.dispatcher.Generate(context.Background(), request("hi", "m"))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	assert.Len(t, h.ledger.all(), 1)
}

func TestGenerate_DisabledProvidersIgnored(t *testing.T) {
	disabled := testProvider("openai", 1, "m")
	disabled.Enabled = false
	h := newHarness(t, disabled)

	_, err := h.dispatcher.Generate(context.Background(), request("hi", "m"))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Zero(t, h.adapters["openai"].callCount())
}

func TestGenerate_NoProviderForModel(t *testing.T) {
	h := newHarness(t, testProvider("openai", 1, "gpt-4o"))

	_, err := h.dispatcher.Generate(context.Background(), request("hi", "unknown-model"))
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
}

func TestGenerate_AllRateLimited(t *testing.T) {
	h := newHarness(t, testProvider("a", 1, "m"), testProvider("b", 2, "m"))
	h.limiter.refuse["a"] = true
	h.limiter.refuse["b"] = true

	_, err := h.dispatcher.Generate(context.Background(), request("hi", "m"))
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))

	assert.Zero(t, h.adapters["a"].callCount())
	assert.Zero(t, h.adapters["b"].callCount())
	assert.Len(t, h.ledger.all(), 1)
}

func TestGenerate_RateLimitedProviderSkipped(t *testing.T) {
	h := newHarness(t, testProvider("a", 1, "m"), testProvider("b", 2, "m"))
	h.limiter.refuse["a"] = true

	resp, err := h.dispatcher.Generate(context.Background(), request("hi", "m"))
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Provider)
	assert.Zero(t, h.adapters["a"].callCount())
}

func TestGenerate_MixedExhaustionBlamesInvokedProvider(t *testing.T) {
	h := newHarness(t, testProvider("a", 1, "m"), testProvider("b", 2, "m"))
	h.adapters["a"].errs = []error{&providers.Error{Provider: "a", Retryable: true, StatusCode: 502}}
	h.limiter.refuse["b"] = true

	_, err := h.dispatcher.Generate(context.Background(), request("hi", "m"))
	assert.ErrorIs(t, err, ErrProviderRejected)

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "a", de.Provider)
}

func TestGenerate_LimiterErrorFailsOpen(t *testing.T) {
	h := newHarness(t, testProvider("openai", 1, "m"))
	h.limiter.err = errors.New("redis down")

	resp, err := h.dispatcher.Generate(context.Background(), request("hi", "m"))
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
}

func TestGenerate_OverrideIsExclusive(t *testing.T) {
	h := newHarness(t,
		testProvider("openai", 1, "gpt-4o"),
		testProvider("anthropic", 2, "claude-3"),
	)
	h.overrides.overrides["user-1"] = &models.CustomerOverride{UserID: "user-1", ProviderName: "anthropic", ModelName: "claude-3"}
	h.adapters["anthropic"].errs = []error{&providers.Error{Provider: "anthropic", Retryable: true, StatusCode: 503}}

	_, err := h.dispatcher.Generate(context.Background(), request("hi", "gpt-4o"))
	assert.ErrorIs(t, err, ErrProviderRejected)
	assert.Equal(t, 1, h.adapters["anthropic"].callCount())
	assert.Zero(t, h.adapters["openai"].callCount(), "override must not fail over")
}

func TestGenerate_OverrideModelFallbacks(t *testing.T) {
	h := newHarness(t, testProvider("anthropic", 1, "claude-3", "claude-3-haiku"))
	h.overrides.overrides["user-1"] = &models.CustomerOverride{UserID: "user-1", ProviderName: "anthropic"}

	resp, err := h.dispatcher.Generate(context.Background(), request("with model", "claude-3-haiku"))
	require.NoError(t, err)
	assert.Equal(t, "claude-3-haiku", resp.Model)

	resp, err = h.dispatcher.Generate(context.Background(), request("without model", ""))
	require.NoError(t, err)
	assert.Equal(t, "claude-3", resp.Model)
}

func TestGenerate_OverrideDoesNotShareCache(t *testing.T) {
	h := newHarness(t,
		testProvider("openai", 1, "gpt-4o"),
		testProvider("anthropic", 2, "gpt-4o", "claude-3"),
	)
	h.overrides.overrides["user-2"] = &models.CustomerOverride{UserID: "user-2", ProviderName: "anthropic", ModelName: "claude-3"}

	first, err := h.dispatcher.Generate(context.Background(), request("same prompt", "gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, "openai", first.Provider)

	pinned := request("same prompt", "gpt-4o")
	pinned.UserID = "user-2"
	second, err := h.dispatcher.Generate(context.Background(), pinned)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.Equal(t, "anthropic", second.Provider)
	assert.Equal(t, "claude-3", second.Model)

	// the pinned result is cached for its own route only
	third, err := h.dispatcher.Generate(context.Background(), pinned)
	require.NoError(t, err)
	assert.True(t, third.Cached)
	assert.Equal(t, "anthropic", third.Provider)

	fourth, err := h.dispatcher.Generate(context.Background(), request("same prompt", "gpt-4o"))
	require.NoError(t, err)
	assert.True(t, fourth.Cached)
	assert.Equal(t, "openai", fourth.Provider)

	assert.Equal(t, 1, h.adapters["openai"].callCount())
	assert.Equal(t, 1, h.adapters["anthropic"].callCount())
}

func TestGenerate_OverrideToDisabledProviderIgnored(t *testing.T) {
	disabled := testProvider("anthropic", 2, "m")
	disabled.Enabled = false
	h := newHarness(t, testProvider("openai", 1, "m"), disabled)
	h.overrides.overrides["user-1"] = &models.CustomerOverride{UserID: "user-1", ProviderName: "anthropic"}

	resp, err := h.dispatcher.Generate(context.Background(), request("hi", "m"))
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
}

func TestGenerate_OverrideLookupErrorFallsBack(t *testing.T) {
	h := newHarness(t, testProvider("openai", 1, "m"))
	h.overrides.err = errors.New("db down")

	resp, err := h.dispatcher.Generate(context.Background(), request("hi", "m"))
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
}

func TestGenerate_CallerCancellationDoesNotAbortProvider(t *testing.T) {
	h := newHarness(t, testProvider("openai", 1, "m"))
	h.adapters["openai"].block = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := h.dispatcher.Generate(ctx, request("hi", "m"))
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
	assert.Len(t, h.ledger.all(), 1)
}

func TestGenerate_ProviderTimeoutFailsOver(t *testing.T) {
	h := newHarness(t, testProvider("slow", 1, "m"), testProvider("fast", 2, "m"))
	h.adapters["slow"].block = 5 * time.Second
	h.dispatcher.cfg.RequestTimeout = 20 * time.Millisecond

	resp, err := h.dispatcher.Generate(context.Background(), request("hi", "m"))
	require.NoError(t, err)
	assert.Equal(t, "fast", resp.Provider)
}

func TestError_Message(t *testing.T) {
	err := newError(ErrProviderRejected, "openai", "all providers failed", nil)
	assert.Equal(t, "upstream provider failed: openai: all providers failed", err.Error())
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("other")))
}
