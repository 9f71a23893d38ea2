// Package credentials resolves provider API keys from config, the process
// environment and a .env file, in that order.
package credentials

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
)

// Config lists explicit keys by credential id plus the optional .env path.
type Config struct {
	Keys   map[string]string `json:"keys,omitempty" toml:"keys" yaml:"keys,omitempty"`
	DotEnv string            `json:"dotenv,omitempty" toml:"dotenv" yaml:"dotenv,omitempty"` // default ".env"
	NoEnv  bool              `json:"noEnv,omitempty" toml:"noEnv" yaml:"noEnv,omitempty"`    // ignore the process environment
}

// aliases maps credential ids to extra environment variables checked after
// the canonical <ID>_API_KEY.
var aliases = map[string][]string{
	"google": {"GOOGLE_STT_API_KEY"},
	"gemini": {"GOOGLE_API_KEY"},
	"xai":    {"GROK_API_KEY"},
}

// Store answers key lookups. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	keys   map[string]string
	dotenv map[string]string
	useEnv bool
	lookup func(string) (string, bool)
}

// New builds a store from cfg. A missing .env file is not an error.
func New(cfg Config) (*Store, error) {
	s := &Store{
		keys:   make(map[string]string, len(cfg.Keys)),
		useEnv: !cfg.NoEnv,
		lookup: os.LookupEnv,
	}
	for id, k := range cfg.Keys {
		if k = strings.TrimSpace(k); k != "" {
			s.keys[normalize(id)] = k
		}
	}

	path := cfg.DotEnv
	if path == "" {
		path = ".env"
	}
	env, err := godotenv.Read(path)
	switch {
	case err == nil:
		s.dotenv = env
		L_debug("credentials: loaded .env", "path", path, "vars", len(env))
	case errors.Is(err, fs.ErrNotExist):
		if cfg.DotEnv != "" {
			L_warn("credentials: .env not found", "path", path)
		}
	default:
		return nil, err
	}
	return s, nil
}

// FromMap returns a store backed only by the given keys.
func FromMap(keys map[string]string) *Store {
	s, _ := New(Config{Keys: keys, NoEnv: true, DotEnv: os.DevNull})
	return s
}

// APIKey returns the key for credential id.
func (s *Store) APIKey(id string) (string, bool) {
	id = normalize(id)
	if id == "" {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if k, ok := s.keys[id]; ok {
		return k, true
	}
	for _, name := range envNames(id) {
		if s.useEnv {
			if k, ok := s.lookup(name); ok && strings.TrimSpace(k) != "" {
				return strings.TrimSpace(k), true
			}
		}
		if k := strings.TrimSpace(s.dotenv[name]); k != "" {
			return k, true
		}
	}
	return "", false
}

// HasKey reports whether a key exists for id.
func (s *Store) HasKey(id string) bool {
	_, ok := s.APIKey(id)
	return ok
}

// Set stores a key for the life of the process.
func (s *Store) Set(id, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = normalize(id)
	if key = strings.TrimSpace(key); key == "" {
		delete(s.keys, id)
		return
	}
	s.keys[id] = key
}

// Known lists credential ids with an explicit config key, sorted.
func (s *Store) Known() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// envNames returns OPENAI_API_KEY style names for id, then its aliases.
func envNames(id string) []string {
	canon := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(id)) + "_API_KEY"
	return append([]string{canon}, aliases[id]...)
}
