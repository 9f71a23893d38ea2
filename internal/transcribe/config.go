package transcribe

import (
	"time"

	"github.com/roelfdiedericks/voxnote/internal/chunking"
)

// Config holds transcription pipeline settings.
type Config struct {
	ChunkThresholdMinutes float64 `json:"chunkThresholdMinutes" toml:"chunkThresholdMinutes" yaml:"chunkThresholdMinutes"` // split above this duration
	ChunkWindowMinutes    float64 `json:"chunkWindowMinutes" toml:"chunkWindowMinutes" yaml:"chunkWindowMinutes"`          // length of each window
	Parallelism           int     `json:"parallelism" toml:"parallelism" yaml:"parallelism"`                               // concurrent chunk uploads, 1 = sequential
	ScratchDir            string  `json:"scratchDir" toml:"scratchDir" yaml:"scratchDir"`                                  // temp dir for exported chunks, empty = os temp
}

// DefaultConfig returns 10 minute threshold, 8 minute windows, sequential.
func DefaultConfig() Config {
	return Config{
		ChunkThresholdMinutes: chunking.DefaultAudioThreshold.Minutes(),
		ChunkWindowMinutes:    chunking.DefaultAudioWindow.Minutes(),
		Parallelism:           1,
	}
}

func (c Config) audioOptions() chunking.AudioOptions {
	return chunking.AudioOptions{
		Threshold: minutes(c.ChunkThresholdMinutes),
		Window:    minutes(c.ChunkWindowMinutes),
	}
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
