package speakers

import (
	"testing"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/types"
)

func seg(start, end float64, text string) types.Segment {
	return types.Segment{
		Start: time.Duration(start * float64(time.Second)),
		End:   time.Duration(end * float64(time.Second)),
		Text:  text,
	}
}

func speakersOf(segs []types.Segment) []int {
	out := make([]int, len(segs))
	for i, s := range segs {
		out[i] = s.Speaker
	}
	return out
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHeuristics(t *testing.T) {
	segs := []types.Segment{
		seg(0, 2, "a"),
		seg(2.2, 4, "b"),
		seg(6, 8, "c"), // 2s gap
		seg(8.1, 9, "d"),
		seg(12, 13, "e"), // 3s gap
	}

	tests := []struct {
		name string
		cfg  Config
		want []int
	}{
		{"pause", Config{Mode: "pause", PauseSeconds: 1.5, Speakers: 2}, []int{1, 1, 2, 2, 1}},
		{"pause three speakers", Config{Mode: "pause", PauseSeconds: 1.5, Speakers: 3}, []int{1, 1, 2, 2, 3}},
		{"every two", Config{Mode: "every", EveryN: 2, Speakers: 2}, []int{1, 1, 2, 2, 1}},
		{"none", Config{Mode: "none"}, []int{0, 0, 0, 0, 0}},
		{"unknown", Config{Mode: "acoustic"}, []int{0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.cfg).Assign(segs)
			if !equal(speakersOf(got), tt.want) {
				t.Errorf("speakers = %v, want %v", speakersOf(got), tt.want)
			}
			for i := range got {
				if got[i].Text != segs[i].Text {
					t.Fatalf("segment %d reordered", i)
				}
			}
		})
	}
	if segs[0].Speaker != 0 {
		t.Error("Assign mutated its input")
	}
}

func TestRender(t *testing.T) {
	segs := []types.Segment{
		{Speaker: 1, Text: "hi"},
		{Speaker: 1, Text: "there"},
		{Speaker: 2, Text: "hello"},
		{Speaker: 2, Text: ""},
	}
	want := "Speaker 1: hi there\n\nSpeaker 2: hello"
	if got := Render(segs); got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
	if got := Render([]types.Segment{{Text: "a"}, {Text: "b"}}); got != "a b" {
		t.Errorf("Render bare = %q", got)
	}
}
