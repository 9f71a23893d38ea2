package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roelfdiedericks/voxnote/internal/credentials"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/llm"
	"github.com/roelfdiedericks/voxnote/internal/media"
	"github.com/roelfdiedericks/voxnote/internal/operations"
	"github.com/roelfdiedericks/voxnote/internal/paths"
	"github.com/roelfdiedericks/voxnote/internal/recordings"
	"github.com/roelfdiedericks/voxnote/internal/speakers"
	"github.com/roelfdiedericks/voxnote/internal/stt"
	"github.com/roelfdiedericks/voxnote/internal/summarize"
	"github.com/roelfdiedericks/voxnote/internal/telemetry"
	"github.com/roelfdiedericks/voxnote/internal/transcribe"
)

// Config is the complete voxnote configuration.
type Config struct {
	LogLevel    string             `json:"logLevel" toml:"logLevel" yaml:"logLevel"`
	HTTP        HTTPConfig         `json:"http" toml:"http" yaml:"http"`
	Credentials credentials.Config `json:"credentials" toml:"credentials" yaml:"credentials"`
	Media       media.Config       `json:"media" toml:"media" yaml:"media"`
	STT         stt.Config         `json:"stt" toml:"stt" yaml:"stt"`
	Transcribe  transcribe.Config  `json:"transcribe" toml:"transcribe" yaml:"transcribe"`
	Speakers    speakers.Config    `json:"speakers" toml:"speakers" yaml:"speakers"`
	LLM         llm.Config         `json:"llm" toml:"llm" yaml:"llm"`
	Summarize   summarize.Config   `json:"summarize" toml:"summarize" yaml:"summarize"`
	Operations  operations.Config  `json:"operations" toml:"operations" yaml:"operations"`
	Recordings  recordings.Config  `json:"recordings" toml:"recordings" yaml:"recordings"`
	Telemetry   TelemetryConfig    `json:"telemetry" toml:"telemetry" yaml:"telemetry"`
}

// HTTPConfig holds configuration for the HTTP API.
type HTTPConfig struct {
	Disabled bool   `json:"disabled" toml:"disabled" yaml:"disabled"`
	Listen   string `json:"listen" toml:"listen" yaml:"listen"` // e.g. "127.0.0.1:7337"
}

// TelemetryConfig configures provider call reporting.
type TelemetryConfig struct {
	QueueSize int                   `json:"queueSize" toml:"queueSize" yaml:"queueSize"`
	MetricsDB string                `json:"metricsDB" toml:"metricsDB" yaml:"metricsDB"` // empty = ~/.voxnote/metrics.db
	Redis     telemetry.RedisConfig `json:"redis" toml:"redis" yaml:"redis"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:   "info",
		HTTP:       HTTPConfig{Listen: "127.0.0.1:7337"},
		Media:      media.DefaultConfig(),
		STT:        stt.DefaultConfig(),
		Transcribe: transcribe.DefaultConfig(),
		Speakers:   speakers.DefaultConfig(),
		LLM:        llm.DefaultConfig(),
		Summarize:  summarize.DefaultConfig(),
		Operations: operations.DefaultConfig(),
		Recordings: recordings.Config{
			Database:   "~/.voxnote/recordings.db",
			Inbox:      "~/.voxnote/inbox",
			DebounceMs: 2000,
		},
		Telemetry: TelemetryConfig{
			QueueSize: 256,
			MetricsDB: "~/.voxnote/metrics.db",
			Redis:     telemetry.RedisConfig{Stream: "voxnote:calls", MaxLen: 10000},
		},
	}
}

// Format is a config file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf picks the encoding from the file extension; unknown extensions are JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load discovers the config file and loads it. No file is not an error:
// the defaults are returned with an empty path.
func Load() (*Config, string, error) {
	path, err := paths.ConfigPath()
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		L_debug("config: no config file, using defaults")
		cfg := Default()
		if err := cfg.expandPaths(); err != nil {
			return nil, "", err
		}
		return &cfg, "", nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFile reads path, decodes it by extension and fills unset fields
// from Default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	L_info("config: loaded", "path", path, "format", FormatOf(path))
	return cfg, nil
}

// Parse decodes data, fills unset fields from Default, expands paths and
// validates the result.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config
	if err := Decode(data, format, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", format, err)
	}
	if err := mergo.Merge(&cfg, Default()); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode unmarshals data in the given format.
func Decode(data []byte, format Format, v any) error {
	switch format {
	case FormatTOML:
		_, err := toml.Decode(string(data), v)
		return err
	case FormatYAML:
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

// Encode marshals v in the given format.
func Encode(v any, format Format) ([]byte, error) {
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(v); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatYAML:
		return yaml.Marshal(v)
	default:
		return json.MarshalIndent(v, "", "  ")
	}
}

// Validate checks values the components cannot repair themselves.
func (c *Config) Validate() error {
	if c.Operations.MaxConcurrent < 0 {
		return fmt.Errorf("operations.maxConcurrent must not be negative")
	}
	if c.Transcribe.Parallelism < 0 || c.Summarize.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative")
	}
	if c.Summarize.ChunkOverlap >= c.Summarize.ChunkSize {
		return fmt.Errorf("summarize.chunkOverlap (%d) must be smaller than chunkSize (%d)",
			c.Summarize.ChunkOverlap, c.Summarize.ChunkSize)
	}
	if c.Transcribe.ChunkWindowMinutes <= 0 {
		return fmt.Errorf("transcribe.chunkWindowMinutes must be positive")
	}
	return nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Recordings.Database,
		&c.Recordings.Inbox,
		&c.Telemetry.MetricsDB,
		&c.Transcribe.ScratchDir,
		&c.Credentials.DotEnv,
		&c.STT.WhisperCpp.ModelsDir,
	} {
		expanded, err := paths.ExpandTilde(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// WriteDefault writes the default config to path in the format its
// extension names, keeping a backup of any existing file.
func WriteDefault(path string) error {
	return Save(path, Default())
}

// Save encodes cfg by the extension of path and writes it atomically.
func Save(path string, cfg Config) error {
	data, err := Encode(cfg, FormatOf(path))
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return BackupAndWrite(path, data, DefaultBackupCount)
}
