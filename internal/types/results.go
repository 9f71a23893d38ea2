// Package types holds the result and error types shared by the transcription
// and summarization pipelines.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Length is the requested level of detail for a summary.
type Length string

const (
	LengthBrief    Length = "brief"
	LengthStandard Length = "standard"
	LengthDetailed Length = "detailed"
)

// ParseLength parses a length name. Empty input maps to standard.
func ParseLength(s string) (Length, error) {
	switch Length(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return LengthStandard, nil
	case LengthBrief:
		return LengthBrief, nil
	case LengthStandard:
		return LengthStandard, nil
	case LengthDetailed:
		return LengthDetailed, nil
	}
	return "", fmt.Errorf("unknown summary length %q (want brief, standard or detailed)", s)
}

// Sentences is the number of sentences the local extract keeps.
func (l Length) Sentences() int {
	switch l {
	case LengthBrief:
		return 3
	case LengthDetailed:
		return 10
	default:
		return 6
	}
}

// MaxChars caps the clean summary text.
func (l Length) MaxChars() int {
	switch l {
	case LengthBrief:
		return 1500
	case LengthDetailed:
		return 8000
	default:
		return 4000
	}
}

// MaxTokens is the output token budget requested from a model.
func (l Length) MaxTokens() int {
	switch l {
	case LengthBrief:
		return 512
	case LengthDetailed:
		return 2048
	default:
		return 1024
	}
}

// Segment is a timed, speaker-labeled piece of a transcript.
// Speaker numbers start at 1; 0 means unassigned.
type Segment struct {
	Speaker int           `json:"speaker"`
	Start   time.Duration `json:"start"`
	End     time.Duration `json:"end"`
	Text    string        `json:"text"`
}

// Transcript is the result of a transcription.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
	Provider string    `json:"provider"`
	Chunks   int       `json:"chunks"`
}

// Summary is the result of a summarization. Raw is the model output as
// returned (usually markdown); Clean is the plain-text rendering.
type Summary struct {
	Clean    string `json:"clean"`
	Raw      string `json:"raw,omitempty"`
	Provider string `json:"provider"`
	Length   Length `json:"length"`
	Chunks   int    `json:"chunks"`
}

// ProgressFunc receives progress in [0,1].
type ProgressFunc func(float64)

// NoProgress discards progress updates.
func NoProgress(float64) {}
