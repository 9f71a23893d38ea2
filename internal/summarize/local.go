package summarize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roelfdiedericks/voxnote/internal/types"
)

// LocalProvider is the provider name reported for local extracts.
const LocalProvider = "local"

// localNotice heads every local extract. It contains no sentence
// terminators so it never counts as an extracted sentence.
const localNotice = "[Local extract: AI summary unavailable, showing the opening of the transcript]"

// LocalExtract returns the first l.Sentences() sentences of transcript
// under a notice. It cannot fail on non-empty input.
func LocalExtract(transcript string, l types.Length) types.Summary {
	sentences := Sentences(transcript)
	if k := l.Sentences(); len(sentences) > k {
		sentences = sentences[:k]
	}
	body := strings.Join(sentences, " ")
	return types.Summary{
		Clean:    Truncate(localNotice+"\n\n"+body, l.MaxChars()),
		Provider: LocalProvider,
		Length:   l,
	}
}

// Sentences splits text after '.', '!', '?' and '…' runs followed by
// whitespace. Speaker labels and line breaks are folded into spaces.
func Sentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	var out []string
	start := 0
	for i, r := range text {
		if !isTerminator(r) {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next < len(text) {
			nr, _ := utf8.DecodeRuneInString(text[next:])
			if !unicode.IsSpace(nr) {
				continue
			}
		}
		if s := strings.TrimSpace(text[start:next]); s != "" {
			out = append(out, s)
		}
		start = next
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

// Truncate caps s at max runes, cutting at the last sentence or word
// boundary and appending an ellipsis. The result is at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max-1])

	if i := strings.LastIndexAny(cut, ".!?\n"); i > len(cut)/2 {
		return strings.TrimSpace(cut[:i+1])
	}
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}
