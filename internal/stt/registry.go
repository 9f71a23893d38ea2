package stt

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/media"
	"github.com/roelfdiedericks/voxnote/internal/paths"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// KeySource resolves provider API keys.
type KeySource interface {
	APIKey(id string) (string, bool)
}

// Registry is an ordered lookup table of configured STT providers.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]Provider
	def       string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p, replacing any provider with the same name. The first
// registered provider becomes the default unless SetDefault is called.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if old, ok := r.providers[name]; ok {
		if err := old.Close(); err != nil {
			L_warn("stt: failed to close replaced provider", "provider", name, "error", err)
		}
	} else {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
	if r.def == "" {
		r.def = name
	}
}

// SetDefault selects the provider used when a request names none.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	r.def = name
	r.mu.Unlock()
}

// Default returns the default provider name.
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

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
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
		return types.NewError(types.KindNotFound, "stt", fmt.Sprintf("unknown transcription provider(s): %s", strings.Join(missing, ", ")))
	}
	return nil
}

// Select picks the provider for a request: an on-device provider when
// preferred and available, else name, else the default.
func (r *Registry) Select(name string, onDevicePreferred bool) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if onDevicePreferred {
		for _, id := range r.order {
			if p := r.providers[id]; IsOnDevice(p) {
				return p, nil
			}
		}
	}
	if name == "" {
		name = r.def
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, types.NewError(types.KindNotFound, "stt", "transcription provider not configured: "+name)
	}
	return p, nil
}

// Close releases every provider.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.order {
		if err := r.providers[name].Close(); err != nil {
			L_warn("stt: failed to close provider", "provider", name, "error", err)
		}
	}
	r.providers = make(map[string]Provider)
	r.order = nil
}

// Build registers every provider that cfg and keys make usable. Providers
// missing a key or model are skipped with a warning.
func Build(cfg Config, keys KeySource, tools *media.Tools) *Registry {
	r := NewRegistry()
	timeout := time.Duration(cfg.TimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	if key, ok := keys.APIKey("openai"); ok {
		if p, err := NewOpenAIProvider(key, cfg.OpenAI, timeout); err == nil {
			r.Register(p)
		}
	} else {
		L_debug("stt: openai key not configured")
	}
	if key, ok := keys.APIKey("groq"); ok {
		if p, err := NewGroqProvider(key, cfg.Groq, timeout); err == nil {
			r.Register(p)
		}
	}
	if key, ok := keys.APIKey("google"); ok {
		if p, err := NewGoogleProvider(key, cfg.Google, timeout); err == nil {
			r.Register(p)
		}
	}
	if cfg.WhisperCpp.ModelPath() != "" {
		wcfg := cfg.WhisperCpp
		if dir, err := paths.ExpandTilde(wcfg.ModelsDir); err == nil {
			wcfg.ModelsDir = dir
		}
		if p, err := NewWhisperCppProvider(wcfg, tools); err != nil {
			L_warn("stt: whispercpp unavailable", "error", err)
		} else {
			r.Register(p)
		}
	}

	if cfg.Provider != "" {
		r.SetDefault(cfg.Provider)
	}
	L_info("stt: registry built", "providers", r.Names(), "default", r.Default())
	return r
}
