package summarize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/roelfdiedericks/voxnote/internal/types"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"heading and emphasis", "# Overview\n\nWe **shipped** the *beta*.", "Overview\n\nWe shipped the beta."},
		{"bullets", "- one\n- two", "• one\n• two"},
		{"ordered", "3. first\n4. second", "3. first\n4. second"},
		{"nested", "- a\n  - b\n- c", "• a\n  • b\n• c"},
		{"link", "See [notes](https://example.com/n).", "See notes (https://example.com/n)."},
		{"code span", "Run `make test` now.", "Run make test now."},
		{"raw html dropped", "Hi <b>there</b>", "Hi there"},
		{"task list", "- [x] done\n- [ ] todo", "• [x] done\n• [ ] todo"},
		{"table", "| Owner | Task |\n|---|---|\n| Ana | Deploy |", "Owner  Task\n-----  ------\nAna    Deploy"},
		{"blank", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.in); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSentences(t *testing.T) {
	got := Sentences("Speaker 1: Hello there.  How are you?\nFine... thanks! Version 2.5 shipped")
	want := []string{"Speaker 1: Hello there.", "How are you?", "Fine...", "thanks!", "Version 2.5 shipped"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Sentences = %q", got)
	}
}

func TestLocalExtractSentenceCounts(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("This is a sentence. ")
	}
	for _, l := range []types.Length{types.LengthBrief, types.LengthStandard, types.LengthDetailed} {
		sum := LocalExtract(b.String(), l)
		if got := len(Sentences(sum.Clean)); got != l.Sentences() {
			t.Errorf("%s: sentences = %d, want %d", l, got, l.Sentences())
		}
		if sum.Provider != LocalProvider || sum.Length != l {
			t.Errorf("%s: summary = %+v", l, sum)
		}
	}
}

func TestTruncate(t *testing.T) {
	s := strings.Repeat("Alpha beta gamma. ", 200)
	for _, max := range []int{50, 100, 1500} {
		got := Truncate(s, max)
		if n := utf8.RuneCountInString(got); n > max {
			t.Errorf("Truncate(%d) = %d runes", max, n)
		}
		if !strings.HasSuffix(got, ".") && !strings.HasSuffix(got, "…") {
			t.Errorf("Truncate(%d) cut mid-sentence: %q", max, got[len(got)-10:])
		}
	}
	if Truncate("short", 100) != "short" {
		t.Error("short text changed")
	}
	if got := Truncate(strings.Repeat("ü", 30), 10); utf8.RuneCountInString(got) > 10 || !utf8.ValidString(got) {
		t.Errorf("multibyte truncate = %q", got)
	}
}
