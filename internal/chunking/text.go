// Package chunking splits oversized inputs into ordered pieces and tracks
// progress across them. Text chunks overlap; audio windows do not.
package chunking

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultTextThreshold is the transcript length (characters) above which
	// summarization is chunked. Roughly an hour of speech.
	DefaultTextThreshold = 90000

	// DefaultTextChunkSize is the size of each text window in characters.
	DefaultTextChunkSize = 40000

	// DefaultTextOverlap is how many characters consecutive windows share.
	DefaultTextOverlap = 2000
)

// TextChunk is one window of a transcript. Start and End are character
// (rune) offsets into the original text; End is exclusive.
type TextChunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// TextOptions configures text chunking.
type TextOptions struct {
	Threshold int // chunk only when the text is longer than this
	Size      int // window size
	Overlap   int // characters shared by consecutive windows, must be < Size
}

// DefaultTextOptions returns the standard windowing.
func DefaultTextOptions() TextOptions {
	return TextOptions{
		Threshold: DefaultTextThreshold,
		Size:      DefaultTextChunkSize,
		Overlap:   DefaultTextOverlap,
	}
}

func (o TextOptions) normalized() TextOptions {
	d := DefaultTextOptions()
	if o.Threshold <= 0 {
		o.Threshold = d.Threshold
	}
	if o.Size <= 0 {
		o.Size = d.Size
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		o.Overlap = 0
	}
	return o
}

// NeedsTextChunking reports whether text exceeds the threshold.
func NeedsTextChunking(text string, opts TextOptions) bool {
	opts = opts.normalized()
	return utf8.RuneCountInString(text) > opts.Threshold
}

// TextChunkCount returns how many windows SplitText produces for a text of
// length chars: ceil((length-overlap)/(size-overlap)), at least 1.
func TextChunkCount(length, size, overlap int) int {
	if length <= size {
		return 1
	}
	step := size - overlap
	return (length - overlap + step - 1) / step
}

// SplitText partitions text into overlapping windows of opts.Size
// characters. Every window but the last is exactly Size long and starts
// Size-Overlap characters after the previous one.
func SplitText(text string, opts TextOptions) []TextChunk {
	if text == "" {
		return nil
	}
	opts = opts.normalized()

	runes := []rune(text)
	total := len(runes)
	step := opts.Size - opts.Overlap

	chunks := make([]TextChunk, 0, TextChunkCount(total, opts.Size, opts.Overlap))
	for start := 0; ; start += step {
		end := start + opts.Size
		if end > total {
			end = total
		}
		piece := string(runes[start:end])
		chunks = append(chunks, TextChunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  piece,
		})
		if end == total {
			break
		}
	}
	return chunks
}

// Reconstruct joins chunks back into the original text by dropping each
// chunk's leading overlap with its predecessor.
func Reconstruct(chunks []TextChunk) string {
	var b strings.Builder
	prevEnd := 0
	for i, c := range chunks {
		runes := []rune(c.Text)
		skip := 0
		if i > 0 {
			skip = prevEnd - c.Start
			if skip < 0 {
				skip = 0
			}
			if skip > len(runes) {
				skip = len(runes)
			}
		}
		b.WriteString(string(runes[skip:]))
		prevEnd = c.End
	}
	return b.String()
}
