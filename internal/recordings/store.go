// Package recordings persists recordings with their transcript and summary,
// and discovers new audio files dropped into an inbox directory.
package recordings

import (
	"context"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/types"
)

// Recording is one audio file and whatever has been derived from it.
type Recording struct {
	ID         string            `json:"id"`
	Path       string            `json:"path"`
	Title      string            `json:"title"`
	Language   string            `json:"language,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Transcript *types.Transcript `json:"transcript,omitempty"`
	Summary    *types.Summary    `json:"summary,omitempty"`
}

// NeedsTranscript reports whether no transcript has been saved yet.
func (r Recording) NeedsTranscript() bool {
	return r.Transcript == nil
}

// NeedsSummary reports whether a transcript exists without a summary.
func (r Recording) NeedsSummary() bool {
	return r.Transcript != nil && r.Summary == nil
}

// Store is the recordings collaborator used by the operation registry.
type Store interface {
	// Get returns a recording or a not_found error.
	Get(ctx context.Context, id string) (Recording, error)
	// Pending lists recordings missing a transcript or a summary, oldest first.
	Pending(ctx context.Context) ([]Recording, error)
	SaveTranscript(ctx context.Context, id string, t types.Transcript) error
	SaveSummary(ctx context.Context, id string, s types.Summary) error
	// Add inserts r, assigning an id when empty. Adding a path that is
	// already known returns the existing recording.
	Add(ctx context.Context, r Recording) (Recording, error)
}

// Config controls the recordings database and inbox.
type Config struct {
	Database      string `json:"database,omitempty" toml:"database" yaml:"database,omitempty"`          // default ~/.voxnote/recordings.db
	Inbox         string `json:"inbox,omitempty" toml:"inbox" yaml:"inbox,omitempty"`                   // default ~/.voxnote/inbox
	WatchInbox    bool   `json:"watchInbox" toml:"watchInbox" yaml:"watchInbox"`                        // enable fsnotify discovery
	DebounceMs    int    `json:"debounceMs,omitempty" toml:"debounceMs" yaml:"debounceMs,omitempty"`    // settle time before a new file is added
	AutoSummarize bool   `json:"autoSummarize" toml:"autoSummarize" yaml:"autoSummarize"`               // summarize after each transcription
	Language      string `json:"language,omitempty" toml:"language" yaml:"language,omitempty"`          // default transcription language
	OnDevice      bool   `json:"onDevicePreferred" toml:"onDevicePreferred" yaml:"onDevicePreferred"`   // transcribe inbox files with whisper.cpp when registered
}
