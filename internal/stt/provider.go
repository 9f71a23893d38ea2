// Package stt provides speech-to-text providers for recorded audio.
package stt

import (
	"context"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// Request describes one transcription call. AudioPath is a single file that
// already fits the provider's limits; chunking happens upstream.
type Request struct {
	AudioPath         string
	Language          string // BCP-47 or ISO-639-1; empty lets the provider detect
	OnDevicePreferred bool
}

// Provider is the interface for STT implementations.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "whispercpp").
	Name() string

	// Transcribe converts one audio file to text. Segment times are relative
	// to the start of the file. progress receives monotonic values in [0,1].
	Transcribe(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Transcript, error)

	// MaxUploadBytes is the largest file accepted in one call, 0 = unlimited.
	MaxUploadBytes() int64

	// Close releases any resources held by the provider.
	Close() error
}

// Constrained is implemented by providers that need shorter chunks or a
// specific container for exported audio.
type Constrained interface {
	MaxDuration() time.Duration
	ChunkFormat() string
}

// OnDevice marks providers that run locally.
type OnDevice interface {
	OnDevice() bool
}

// IsOnDevice reports whether p runs without network access.
func IsOnDevice(p Provider) bool {
	d, ok := p.(OnDevice)
	return ok && d.OnDevice()
}
