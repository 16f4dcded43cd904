package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fahdr/ecomm-sub005/internal/models"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// ConfigSource lists the persisted provider configurations
type ConfigSource interface {
	List(ctx context.Context) ([]*models.Provider, error)
}

// CredentialDecrypter turns a stored credential into the plaintext API key
type CredentialDecrypter interface {
	Decrypt(ciphertext string) ([]byte, error)
}

// RegistryConfig holds the registry's collaborators
type RegistryConfig struct {
	Source         ConfigSource
	Decrypter      CredentialDecrypter // nil means credentials are stored in plaintext
	Factory        *ProviderFactory
	ReloadInterval time.Duration
}

// Entry pairs an enabled provider's configuration with its live adapter
type Entry struct {
	Config  *models.Provider
	Adapter Provider
}

// registrySnapshot is immutable once published
type registrySnapshot struct {
	byName  map[string]*Entry
	ordered []*Entry // enabled entries by (priority, name)
	loaded  time.Time
}

// ProviderRegistry holds the enabled providers. Readers get a consistent
// snapshot; Reload builds a new one and swaps it in atomically.
type ProviderRegistry struct {
	cfg      RegistryConfig
	snapshot atomic.Pointer[registrySnapshot]
	reloadMu sync.Mutex
	logger   *utils.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
}

// NewProviderRegistry creates the registry and performs the first load
func NewProviderRegistry(ctx context.Context, cfg RegistryConfig) (*ProviderRegistry, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("provider config source is required")
	}
	if cfg.Factory == nil {
		cfg.Factory = NewProviderFactory()
	}

	r := &ProviderRegistry{
		cfg:    cfg,
		logger: utils.NewLogger("provider-registry"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	r.snapshot.Store(&registrySnapshot{byName: map[string]*Entry{}})

	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Start launches the periodic reload loop
func (r *ProviderRegistry) Start() {
	if r.cfg.ReloadInterval <= 0 || !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.reloadLoop()
}

func (r *ProviderRegistry) reloadLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cfg.ReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := r.Reload(ctx); err != nil {
				r.logger.Error("Failed to reload providers, keeping previous snapshot", "error", err)
			}
			cancel()
		}
	}
}

// Reload reads every provider from the source and publishes a new snapshot.
// Adapters of unchanged providers are reused; those that disappear are closed.
// A provider whose adapter cannot be built is left out and logged.
func (r *ProviderRegistry) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	configs, err := r.cfg.Source.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list providers: %w", err)
	}

	prev := r.snapshot.Load()
	next := &registrySnapshot{
		byName: make(map[string]*Entry, len(configs)),
		loaded: time.Now(),
	}
	reused := make(map[string]bool)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		if old, ok := prev.byName[cfg.Name]; ok && sameAdapterConfig(old.Config, cfg) {
			next.byName[cfg.Name] = &Entry{Config: cfg, Adapter: old.Adapter}
			reused[cfg.Name] = true
			continue
		}

		adapter, err := r.buildAdapter(cfg)
		if err != nil {
			r.logger.Error("Skipping provider", "provider", cfg.Name, "error", err)
			continue
		}
		next.byName[cfg.Name] = &Entry{Config: cfg, Adapter: adapter}
	}

	for _, e := range next.byName {
		next.ordered = append(next.ordered, e)
	}
	sort.Slice(next.ordered, func(i, j int) bool {
		return lessByPriority(next.ordered[i].Config, next.ordered[j].Config)
	})

	r.snapshot.Store(next)

	for name, old := range prev.byName {
		if !reused[name] {
			_ = old.Adapter.Close()
		}
	}

	r.logger.Debug("Providers reloaded", "enabled", len(next.ordered), "configured", len(configs))
	return nil
}

func (r *ProviderRegistry) buildAdapter(cfg *models.Provider) (Provider, error) {
	credential := cfg.EncryptedCredential
	if r.cfg.Decrypter != nil && credential != "" {
		plain, err := r.cfg.Decrypter.Decrypt(credential)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credential: %w", err)
		}
		credential = string(plain)
	}

	return r.cfg.Factory.CreateProvider(ProviderConfig{
		Name:       cfg.Name,
		Type:       cfg.AdapterType(),
		Credential: credential,
		Config:     cfg.Config,
	})
}

// Validate builds a throwaway adapter for cfg and checks its credential
// with the vendor. cfg need not be enabled.
func (r *ProviderRegistry) Validate(ctx context.Context, cfg *models.Provider) error {
	adapter, err := r.buildAdapter(cfg)
	if err != nil {
		return err
	}
	defer adapter.Close()

	return adapter.ValidateCredentials(ctx)
}

// SupportsAdapter reports whether an adapter variant is registered
func (r *ProviderRegistry) SupportsAdapter(adapterType string) bool {
	return r.cfg.Factory.Supports(adapterType)
}

// sameAdapterConfig reports whether an adapter built for a can serve b
func sameAdapterConfig(a, b *models.Provider) bool {
	return a.UpdatedAt.Equal(b.UpdatedAt) &&
		a.AdapterType() == b.AdapterType() &&
		a.EncryptedCredential == b.EncryptedCredential
}

// lessByPriority orders by ascending priority, then name
func lessByPriority(a, b *models.Provider) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Name < b.Name
}

// Lookup returns the enabled provider with the given name
func (r *ProviderRegistry) Lookup(name string) (*Entry, bool) {
	e, ok := r.snapshot.Load().byName[name]
	return e, ok
}

// Enabled returns all enabled providers in dispatch order
func (r *ProviderRegistry) Enabled() []*Entry {
	ordered := r.snapshot.Load().ordered
	out := make([]*Entry, len(ordered))
	copy(out, ordered)
	return out
}

// Candidates returns the enabled providers that list the model, in dispatch order
func (r *ProviderRegistry) Candidates(model string) []*Entry {
	var out []*Entry
	for _, e := range r.snapshot.Load().ordered {
		if e.Config.Supports(model) {
			out = append(out, e)
		}
	}
	return out
}

// LoadedAt returns when the current snapshot was built
func (r *ProviderRegistry) LoadedAt() time.Time {
	return r.snapshot.Load().loaded
}

// Close stops the reload loop and closes all adapters
func (r *ProviderRegistry) Close() error {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.started.Load() {
			<-r.doneCh
		}
	})

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()
	snap := r.snapshot.Swap(&registrySnapshot{byName: map[string]*Entry{}})
	for _, e := range snap.byName {
		_ = e.Adapter.Close()
	}
	return nil
}
