package summarize

import "github.com/roelfdiedericks/voxnote/internal/chunking"

// Config holds summarization pipeline settings.
type Config struct {
	ChunkThreshold int `json:"chunkThreshold" toml:"chunkThreshold" yaml:"chunkThreshold"` // characters; split above this
	ChunkSize      int `json:"chunkSize" toml:"chunkSize" yaml:"chunkSize"`                // characters per window
	ChunkOverlap   int `json:"chunkOverlap" toml:"chunkOverlap" yaml:"chunkOverlap"`       // characters shared by neighbours
	Parallelism    int `json:"parallelism" toml:"parallelism" yaml:"parallelism"`          // concurrent chunk calls, 1 = sequential
}

// DefaultConfig returns 90k threshold, 40k windows, 2k overlap, sequential.
func DefaultConfig() Config {
	return Config{
		ChunkThreshold: chunking.DefaultTextThreshold,
		ChunkSize:      chunking.DefaultTextChunkSize,
		ChunkOverlap:   chunking.DefaultTextOverlap,
		Parallelism:    1,
	}
}

func (c Config) textOptions() chunking.TextOptions {
	return chunking.TextOptions{
		Threshold: c.ChunkThreshold,
		Size:      c.ChunkSize,
		Overlap:   c.ChunkOverlap,
	}
}
