package chunking

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func makeText(n int) string {
	var b strings.Builder
	words := []string{"alpha ", "beta ", "gamma ", "delta. ", "épsilon ", "zeta\n"}
	for i := 0; b.Len() < n*2; i++ {
		b.WriteString(words[i%len(words)])
	}
	return string([]rune(b.String())[:n])
}

func TestTextChunkCountFormula(t *testing.T) {
	tests := []struct {
		length, size, overlap, want int
	}{
		{95000, 40000, 2000, 3},
		{90001, 40000, 2000, 3},
		{78000, 40000, 2000, 2},
		{78001, 40000, 2000, 3},
		{40000, 40000, 2000, 1},
		{100, 40000, 2000, 1},
		{10, 4, 0, 3},
	}
	for _, tt := range tests {
		if got := TextChunkCount(tt.length, tt.size, tt.overlap); got != tt.want {
			t.Errorf("TextChunkCount(%d,%d,%d) = %d, want %d", tt.length, tt.size, tt.overlap, got, tt.want)
		}
	}
}

func TestSplitTextMatchesFormulaAndReconstructs(t *testing.T) {
	tests := []struct {
		name   string
		length int
		opts   TextOptions
	}{
		{"scenario length", 95000, DefaultTextOptions()},
		{"exact multiple", 78000, DefaultTextOptions()},
		{"one over", 78001, DefaultTextOptions()},
		{"small windows", 1234, TextOptions{Threshold: 100, Size: 100, Overlap: 7}},
		{"no overlap", 1000, TextOptions{Threshold: 100, Size: 300, Overlap: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := makeText(tt.length)
			chunks := SplitText(text, tt.opts)

			want := TextChunkCount(tt.length, tt.opts.Size, tt.opts.Overlap)
			if len(chunks) != want {
				t.Fatalf("got %d chunks, want %d", len(chunks), want)
			}
			for i, c := range chunks {
				if c.Index != i {
					t.Errorf("chunk %d has index %d", i, c.Index)
				}
				if i < len(chunks)-1 && len([]rune(c.Text)) != tt.opts.Size {
					t.Errorf("chunk %d length %d, want %d", i, len([]rune(c.Text)), tt.opts.Size)
				}
				if i > 0 && chunks[i-1].End-c.Start != tt.opts.Overlap {
					t.Errorf("chunk %d overlap %d, want %d", i, chunks[i-1].End-c.Start, tt.opts.Overlap)
				}
			}
			if got := Reconstruct(chunks); got != text {
				t.Errorf("reconstructed text differs (len %d vs %d)", len(got), len(text))
			}
		})
	}
}

func TestSplitTextWindows(t *testing.T) {
	got := SplitText("abcdefghij", TextOptions{Threshold: 1, Size: 4, Overlap: 1})
	want := []TextChunk{
		{Index: 0, Start: 0, End: 4, Text: "abcd"},
		{Index: 1, Start: 3, End: 7, Text: "defg"},
		{Index: 2, Start: 6, End: 10, Text: "ghij"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitText = %+v, want %+v", got, want)
	}
}

func TestNeedsTextChunking(t *testing.T) {
	opts := DefaultTextOptions()
	if NeedsTextChunking(makeText(90000), opts) {
		t.Error("90000 chars should not chunk")
	}
	if !NeedsTextChunking(makeText(90001), opts) {
		t.Error("90001 chars should chunk")
	}
}

func TestSplitTextEmpty(t *testing.T) {
	if got := SplitText("", DefaultTextOptions()); got != nil {
		t.Errorf("SplitText(\"\") = %v, want nil", got)
	}
}

func TestPlanAudio(t *testing.T) {
	windows := PlanAudio(37*time.Minute, DefaultAudioOptions())
	if len(windows) != 5 {
		t.Fatalf("got %d windows, want 5", len(windows))
	}
	var covered time.Duration
	for i, w := range windows {
		if w.Index != i {
			t.Errorf("window %d index %d", i, w.Index)
		}
		if w.Start != covered {
			t.Errorf("window %d starts at %v, want %v (no gaps, no overlap)", i, w.Start, covered)
		}
		covered = w.End()
	}
	if covered != 37*time.Minute {
		t.Errorf("windows cover %v", covered)
	}
	if last := windows[4]; last.Duration != 5*time.Minute {
		t.Errorf("last window %v, want 5m", last.Duration)
	}
}

func TestNeedsAudioChunking(t *testing.T) {
	opts := DefaultAudioOptions()
	tests := []struct {
		name     string
		duration time.Duration
		size     int64
		want     bool
	}{
		{"short small", 5 * time.Minute, 1 << 20, false},
		{"long", 11 * time.Minute, 1 << 20, true},
		{"short but too large", 5 * time.Minute, 30 << 20, true},
		{"exactly threshold", 10 * time.Minute, 1 << 20, false},
	}
	for _, tt := range tests {
		if got := NeedsAudioChunking(tt.duration, tt.size, DefaultMaxUploadBytes, opts); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWindowForSize(t *testing.T) {
	opts := DefaultAudioOptions()
	got := WindowForSize(6*time.Minute, 60<<20, 25<<20, opts)
	if got <= 0 || got > 3*time.Minute {
		t.Errorf("WindowForSize = %v, want under 3m", got)
	}
	if got := WindowForSize(6*time.Minute, 1<<20, 25<<20, opts); got != opts.Window {
		t.Errorf("small file window = %v, want %v", got, opts.Window)
	}
}

func TestProgressInterpolatesAndNeverRegresses(t *testing.T) {
	var mu sync.Mutex
	var seen []float64
	p := NewProgress(4, func(f float64) {
		mu.Lock()
		seen = append(seen, f)
		mu.Unlock()
	})

	p.Chunk(0)(0.5)
	if got := p.Value(); got != 0.125 {
		t.Errorf("after half of chunk 0: %v, want 0.125", got)
	}
	p.Done(0)
	if got := p.Value(); got != 0.25 {
		t.Errorf("after chunk 0: %v, want 0.25", got)
	}
	p.Chunk(1)(0.5)
	if got := p.Value(); got != 0.375 {
		t.Errorf("after half of chunk 1: %v, want 0.375", got)
	}
	p.Chunk(1)(0.2) // late, smaller callback
	if got := p.Value(); got != 0.375 {
		t.Errorf("progress regressed to %v", got)
	}

	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Errorf("reported %v after %v", seen[i], seen[i-1])
		}
	}
}

func TestOrderedSequentialStopsOnError(t *testing.T) {
	var started []int
	boom := errors.New("chunk 2 failed")
	_, err := Ordered(context.Background(), 5, 1, func(ctx context.Context, i int) (string, error) {
		started = append(started, i)
		if i == 2 {
			return "", boom
		}
		return "ok", nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(started) != 3 {
		t.Errorf("started %v, want chunks 0..2 only", started)
	}
}

func TestOrderedParallelKeepsOrder(t *testing.T) {
	results, err := Ordered(context.Background(), 6, 3, func(ctx context.Context, i int) (int, error) {
		time.Sleep(time.Duration(6-i) * time.Millisecond)
		return i * 10, nil
	})
	if err != nil {
		t.Fatalf("Ordered: %v", err)
	}
	for i, r := range results {
		if r != i*10 {
			t.Errorf("results[%d] = %d", i, r)
		}
	}
}
