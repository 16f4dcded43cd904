package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahdr/ecomm-sub005/internal/models"
)

type fakeSource struct {
	mu        sync.Mutex
	providers []*models.Provider
	err       error
}

func (s *fakeSource) List(ctx context.Context) ([]*models.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providers, s.err
}

func (s *fakeSource) set(p ...*models.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = p
}

type stubAdapter struct {
	name       string
	credential string
	closed     bool
}

func (a *stubAdapter) Name() string { return a.name }
func (a *stubAdapter) Type() string { return "stub" }
func (a *stubAdapter) Generate(ctx context.Context, req Request) (*models.GenerationResult, error) {
	return &models.GenerationResult{Content: "ok", Provider: a.name, Model: req.Model}, nil
}
func (a *stubAdapter) ValidateCredentials(ctx context.Context) error { return nil }
func (a *stubAdapter) Close() error {
	a.closed = true
	return nil
}

type base64Decrypter struct{}

func (base64Decrypter) Decrypt(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func stubFactory() *ProviderFactory {
	f := &ProviderFactory{creators: map[string]ProviderCreator{}}
	f.Register("stub", func(cfg ProviderConfig) (Provider, error) {
		if cfg.Credential == "" {
			return nil, errors.New("missing credential")
		}
		return &stubAdapter{name: cfg.Name, credential: cfg.Credential}, nil
	})
	return f
}

func stubProvider(name string, priority int, enabled bool, modelIDs ...string) *models.Provider {
	return &models.Provider{
		Name:                name,
		Models:              modelIDs,
		Priority:            priority,
		Enabled:             enabled,
		EncryptedCredential: base64.StdEncoding.EncodeToString([]byte("key-" + name)),
		Config:              models.JSONB{"adapter": "stub"},
		UpdatedAt:           time.Unix(1700000000, 0),
	}
}

func newTestRegistry(t *testing.T, source *fakeSource) *ProviderRegistry {
	t.Helper()
	r, err := NewProviderRegistry(context.Background(), RegistryConfig{
		Source:    source,
		Decrypter: base64Decrypter{},
		Factory:   stubFactory(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func names(entries []*Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Config.Name)
	}
	return out
}

func TestRegistry_OrderingIsDeterministic(t *testing.T) {
	source := &fakeSource{}
	source.set(
		stubProvider("zeta", 1, true, "m1"),
		stubProvider("alpha", 2, true, "m1", "m2"),
		stubProvider("beta", 1, true, "m2"),
		stubProvider("off", 0, false, "m1"),
	)
	r := newTestRegistry(t, source)

	assert.Equal(t, []string{"beta", "zeta", "alpha"}, names(r.Enabled()))
	assert.Equal(t, []string{"zeta", "alpha"}, names(r.Candidates("m1")))
	assert.Equal(t, []string{"beta", "alpha"}, names(r.Candidates("m2")))
	assert.Empty(t, r.Candidates("m3"))

	_, ok := r.Lookup("off")
	assert.False(t, ok, "disabled providers are not resolvable")

	e, ok := r.Lookup("alpha")
	require.True(t, ok)
	assert.Equal(t, "key-alpha", e.Adapter.(*stubAdapter).credential)
}

func TestRegistry_ReloadSwapsSnapshot(t *testing.T) {
	source := &fakeSource{}
	a := stubProvider("a", 1, true, "m")
	b := stubProvider("b", 2, true, "m")
	source.set(a, b)
	r := newTestRegistry(t, source)

	before, _ := r.Lookup("a")
	removed, _ := r.Lookup("b")

	changed := stubProvider("a", 3, true, "m")
	changed.UpdatedAt = a.UpdatedAt
	c := stubProvider("c", 1, true, "m")
	source.set(changed, c)
	require.NoError(t, r.Reload(context.Background()))

	assert.Equal(t, []string{"c", "a"}, names(r.Enabled()))

	after, _ := r.Lookup("a")
	assert.Same(t, before.Adapter, after.Adapter, "unchanged adapter config reuses the adapter")
	assert.Equal(t, 3, after.Config.Priority)
	assert.True(t, removed.Adapter.(*stubAdapter).closed)

	rotated := stubProvider("a", 3, true, "m")
	rotated.UpdatedAt = a.UpdatedAt.Add(time.Minute)
	source.set(rotated)
	require.NoError(t, r.Reload(context.Background()))

	latest, _ := r.Lookup("a")
	assert.NotSame(t, before.Adapter, latest.Adapter)
	assert.True(t, before.Adapter.(*stubAdapter).closed)
}

func TestRegistry_SkipsBrokenProviders(t *testing.T) {
	source := &fakeSource{}
	broken := stubProvider("broken", 1, true, "m")
	broken.EncryptedCredential = ""
	unknown := stubProvider("unknown", 1, true, "m")
	unknown.Config = models.JSONB{"adapter": "nope"}
	source.set(broken, unknown, stubProvider("good", 5, true, "m"))

	r := newTestRegistry(t, source)
	assert.Equal(t, []string{"good"}, names(r.Enabled()))
}

func TestRegistry_ReloadErrorKeepsSnapshot(t *testing.T) {
	source := &fakeSource{}
	source.set(stubProvider("a", 1, true, "m"))
	r := newTestRegistry(t, source)

	source.mu.Lock()
	source.err = errors.New("db down")
	source.mu.Unlock()

	assert.Error(t, r.Reload(context.Background()))
	assert.Equal(t, []string{"a"}, names(r.Enabled()))
}

func TestRegistry_RequiresSource(t *testing.T) {
	_, err := NewProviderRegistry(context.Background(), RegistryConfig{})
	assert.Error(t, err)
}

func TestRegistry_StartAndClose(t *testing.T) {
	source := &fakeSource{}
	source.set(stubProvider("a", 1, true, "m"))
	r, err := NewProviderRegistry(context.Background(), RegistryConfig{
		Source:         source,
		Decrypter:      base64Decrypter{},
		Factory:        stubFactory(),
		ReloadInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	r.Start()

	source.set(stubProvider("a", 1, true, "m"), stubProvider("b", 2, true, "m"))
	assert.Eventually(t, func() bool {
		_, ok := r.Lookup("b")
		return ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, r.Close())
	assert.Empty(t, r.Enabled())
}
