package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// KeySource resolves provider API keys by credential id.
type KeySource interface {
	APIKey(id string) (string, bool)
}

// Registry is an ordered lookup table of summarization providers. The
// order is the fallback order after the selected and default providers.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	providers   map[string]Provider
	credentials map[string]string // provider name -> credential id
	def         string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		credentials: make(map[string]string),
	}
}

// Register adds p under its name with the credential id used to check for
// a key. The first registered provider becomes the default.
func (r *Registry) Register(p Provider, credentialID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, ok := r.providers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
	if credentialID == "" {
		credentialID = name
	}
	r.credentials[name] = credentialID
	if r.def == "" {
		r.def = name
	}
}

// SetDefault sets the app default provider.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	r.def = name
	r.mu.Unlock()
}

// Default returns the app default provider name.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns provider names in registry order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// CredentialID returns the credential id for provider name.
func (r *Registry) CredentialID(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.credentials[name]; ok {
		return id
	}
	return name
}

// Validate fails when any of ids has no registered provider.
func (r *Registry) Validate(ids ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := r.providers[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return types.NewError(types.KindNotFound, "llm", fmt.Sprintf("unknown summarization provider(s): %s", strings.Join(missing, ", ")))
	}
	return nil
}

// Build creates every configured provider in cfg.Order, then any remaining
// ones in name order. Providers are registered even without a key so a
// selection of them fails with api_key_missing and falls back. The default
// and every Order entry must resolve.
func Build(cfg Config, keys KeySource) (*Registry, error) {
	r := NewRegistry()
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	names := append([]string(nil), cfg.Order...)
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	var rest []string
	for n := range cfg.Providers {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	names = append(names, rest...)

	for _, name := range names {
		pc, ok := cfg.Providers[name]
		if !ok {
			continue
		}
		key, _ := keys.APIKey(pc.CredentialID())
		p, err := New(name, pc, key, timeout)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		r.Register(p, pc.CredentialID())
	}

	if cfg.Default != "" {
		r.SetDefault(cfg.Default)
	}
	if err := r.Validate(append([]string{cfg.Default}, cfg.Order...)...); err != nil {
		return nil, err
	}
	L_info("llm: registry built", "providers", r.Names(), "default", r.Default())
	return r, nil
}

// New creates a provider for cfg.Driver.
func New(name string, cfg ProviderConfig, apiKey string, timeout time.Duration) (Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model not configured")
	}
	switch cfg.Driver {
	case "openai":
		return NewOpenAIProvider(name, cfg, apiKey, timeout), nil
	case "anthropic":
		return NewAnthropicProvider(name, cfg, apiKey, timeout), nil
	case "gemini":
		return NewGeminiProvider(name, cfg, apiKey, timeout), nil
	case "xai":
		return NewXAIProvider(name, cfg, apiKey, timeout), nil
	case "ollama":
		return NewOllamaProvider(name, cfg, timeout)
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}
