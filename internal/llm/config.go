package llm

// Config contains summarization provider settings. Providers are named
// instances; Order is the registry order used by the fallback chain.
type Config struct {
	Default        string                    `json:"default" toml:"default" yaml:"default"` // app default provider
	Order          []string                  `json:"order" toml:"order" yaml:"order"`
	TimeoutSeconds int                       `json:"timeoutSeconds" toml:"timeoutSeconds" yaml:"timeoutSeconds"`
	Providers      map[string]ProviderConfig `json:"providers" toml:"providers" yaml:"providers"`
}

// ProviderConfig is the configuration for a single provider instance.
type ProviderConfig struct {
	Driver        string `json:"driver" toml:"driver" yaml:"driver"`                      // "openai", "anthropic", "xai", "gemini", "ollama"
	Model         string `json:"model" toml:"model" yaml:"model"`                         // model name
	BaseURL       string `json:"baseURL,omitempty" toml:"baseURL" yaml:"baseURL"`         // OpenAI-compatible or Anthropic-compatible endpoint, Ollama URL
	Credential    string `json:"credential,omitempty" toml:"credential" yaml:"credential"` // credential id, empty = driver name
	MaxTokens     int    `json:"maxTokens,omitempty" toml:"maxTokens" yaml:"maxTokens"`     // output ceiling
	ContextTokens int    `json:"contextTokens,omitempty" toml:"contextTokens" yaml:"contextTokens"`
}

// CredentialID returns the id used to look up this provider's key.
func (c ProviderConfig) CredentialID() string {
	if c.Credential != "" {
		return c.Credential
	}
	return c.Driver
}

// DefaultConfig returns one instance per driver, OpenAI first.
func DefaultConfig() Config {
	return Config{
		Default:        "openai",
		Order:          []string{"openai", "anthropic", "gemini", "xai", "ollama"},
		TimeoutSeconds: 300,
		Providers: map[string]ProviderConfig{
			"openai":    {Driver: "openai", Model: "gpt-4o-mini", ContextTokens: 128000},
			"anthropic": {Driver: "anthropic", Model: "claude-sonnet-4-5", ContextTokens: 200000},
			"gemini":    {Driver: "gemini", Model: "gemini-2.5-flash", ContextTokens: 1000000},
			"xai":       {Driver: "xai", Model: "grok-4-1-fast-non-reasoning", ContextTokens: 2000000},
			"ollama":    {Driver: "ollama", Model: "llama3.2", BaseURL: "http://localhost:11434", ContextTokens: 8192},
		},
	}
}
