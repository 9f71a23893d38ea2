package stt

// Config holds STT configuration. API keys are resolved through the
// credential store, not stored here.
type Config struct {
	Provider       string           `json:"provider" toml:"provider" yaml:"provider"`                   // default provider id
	Language       string           `json:"language" toml:"language" yaml:"language"`                   // default language, empty = detect
	TimeoutMinutes int              `json:"timeoutMinutes" toml:"timeoutMinutes" yaml:"timeoutMinutes"` // per-request HTTP timeout
	OpenAI         OpenAIConfig     `json:"openai" toml:"openai" yaml:"openai"`
	Groq           OpenAIConfig     `json:"groq" toml:"groq" yaml:"groq"`
	Google         GoogleConfig     `json:"google" toml:"google" yaml:"google"`
	WhisperCpp     WhisperCppConfig `json:"whispercpp" toml:"whispercpp" yaml:"whispercpp"`
}

// OpenAIConfig holds settings for OpenAI-compatible Whisper endpoints
// (OpenAI itself and Groq).
type OpenAIConfig struct {
	Model   string `json:"model" toml:"model" yaml:"model"`       // "whisper-1", "whisper-large-v3-turbo"
	BaseURL string `json:"baseURL" toml:"baseURL" yaml:"baseURL"` // override for proxies
}

// GoogleConfig holds Google Cloud STT configuration.
type GoogleConfig struct {
	LanguageCode string `json:"languageCode" toml:"languageCode" yaml:"languageCode"` // e.g. "en-US", "en-ZA"
	BaseURL      string `json:"baseURL" toml:"baseURL" yaml:"baseURL"`
}

// WhisperCppConfig holds configuration for the on-device whisper.cpp model.
type WhisperCppConfig struct {
	ModelsDir string `json:"modelsDir" toml:"modelsDir" yaml:"modelsDir"` // directory containing ggml-*.bin
	Model     string `json:"model" toml:"model" yaml:"model"`             // e.g. "ggml-base.en.bin"
	Threads   uint   `json:"threads" toml:"threads" yaml:"threads"`       // 0 = auto
}

// DefaultConfig returns STT defaults.
func DefaultConfig() Config {
	return Config{
		Provider:       "openai",
		TimeoutMinutes: 30,
		OpenAI:         OpenAIConfig{Model: "whisper-1"},
		Groq:           OpenAIConfig{Model: "whisper-large-v3-turbo", BaseURL: groqBaseURL},
		Google:         GoogleConfig{LanguageCode: "en-US", BaseURL: googleBaseURL},
		WhisperCpp:     WhisperCppConfig{ModelsDir: "~/.voxnote/stt/whisper"},
	}
}
