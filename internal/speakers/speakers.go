// Package speakers assigns speaker numbers to transcript segments. The
// assignment is positional: no acoustic diarization happens here, so the
// numbers are a reading aid rather than an identity claim.
package speakers

import (
	"fmt"
	"strings"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/types"
)

// Heuristic labels segments in place order. Implementations must not
// reorder or drop segments.
type Heuristic interface {
	Name() string
	Assign(segments []types.Segment) []types.Segment
}

// Config selects and tunes a heuristic.
type Config struct {
	Mode         string  `json:"mode" toml:"mode" yaml:"mode"`                         // "pause", "every", "none"
	PauseSeconds float64 `json:"pauseSeconds" toml:"pauseSeconds" yaml:"pauseSeconds"` // gap that starts a new turn
	EveryN       int     `json:"everyN" toml:"everyN" yaml:"everyN"`                   // segments per turn
	Speakers     int     `json:"speakers" toml:"speakers" yaml:"speakers"`             // speakers to rotate through
}

// DefaultConfig returns the pause heuristic with two speakers.
func DefaultConfig() Config {
	return Config{Mode: "pause", PauseSeconds: 1.5, EveryN: 4, Speakers: 2}
}

// New returns the heuristic named by cfg.Mode; unknown modes get None.
func New(cfg Config) Heuristic {
	n := cfg.Speakers
	if n < 1 {
		n = 2
	}
	switch strings.ToLower(cfg.Mode) {
	case "pause":
		gap := time.Duration(cfg.PauseSeconds * float64(time.Second))
		if gap <= 0 {
			gap = 1500 * time.Millisecond
		}
		return Pause{Gap: gap, Speakers: n}
	case "every", "everyn":
		every := cfg.EveryN
		if every < 1 {
			every = 4
		}
		return EveryN{N: every, Speakers: n}
	default:
		return None{}
	}
}

// Pause switches to the next speaker whenever the silence between two
// segments is at least Gap.
type Pause struct {
	Gap      time.Duration
	Speakers int
}

func (Pause) Name() string { return "pause" }

func (h Pause) Assign(segments []types.Segment) []types.Segment {
	out := make([]types.Segment, len(segments))
	speaker := 0
	for i, s := range segments {
		if i > 0 && s.Start-segments[i-1].End >= h.Gap {
			speaker = (speaker + 1) % h.Speakers
		}
		s.Speaker = speaker + 1
		out[i] = s
	}
	return out
}

// EveryN switches speaker after every N segments.
type EveryN struct {
	N        int
	Speakers int
}

func (EveryN) Name() string { return "every" }

func (h EveryN) Assign(segments []types.Segment) []types.Segment {
	out := make([]types.Segment, len(segments))
	for i, s := range segments {
		s.Speaker = (i/h.N)%h.Speakers + 1
		out[i] = s
	}
	return out
}

// None clears speaker numbers.
type None struct{}

func (None) Name() string { return "none" }

func (None) Assign(segments []types.Segment) []types.Segment {
	out := make([]types.Segment, len(segments))
	for i, s := range segments {
		s.Speaker = 0
		out[i] = s
	}
	return out
}

// Render formats segments as speaker turns, merging consecutive segments
// from the same speaker. Segments without a speaker are written bare.
func Render(segments []types.Segment) string {
	var b strings.Builder
	current := -1
	for _, s := range segments {
		if s.Text == "" {
			continue
		}
		if s.Speaker != current {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			if s.Speaker > 0 {
				fmt.Fprintf(&b, "Speaker %d: ", s.Speaker)
			}
			current = s.Speaker
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(s.Text)
	}
	return b.String()
}
