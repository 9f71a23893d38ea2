package tokens

import "testing"

func TestFallbackCount(t *testing.T) {
	var e *Estimator
	if got := e.Count("abcdefgh"); got != 2 {
		t.Errorf("nil estimator Count = %d, want 2", got)
	}
	if got := (&Estimator{}).Count("abcde"); got != 2 {
		t.Errorf("empty estimator Count = %d, want 2", got)
	}
}

func TestFits(t *testing.T) {
	tests := []struct {
		input, output, window int
		want                  bool
	}{
		{1000, 500, 0, true},
		{1000, 500, 2000, true},
		{1000, 900, 2000, false},
		{100000, 1024, 128000, true},
		{120000, 1024, 128000, false},
	}
	for _, tt := range tests {
		if got := Fits(tt.input, tt.output, tt.window); got != tt.want {
			t.Errorf("Fits(%d,%d,%d) = %v, want %v", tt.input, tt.output, tt.window, got, tt.want)
		}
	}
}

func TestCapMaxTokens(t *testing.T) {
	if got := CapMaxTokens(1024, 0, 5000, 100); got != 1024 {
		t.Errorf("unknown window: %d", got)
	}
	if got := CapMaxTokens(4096, 8000, 5000, 100); got != 1900 {
		t.Errorf("capped: %d, want 1900", got)
	}
	if got := CapMaxTokens(4096, 1000, 5000, 100); got != 100 {
		t.Errorf("floor: %d, want 100", got)
	}
}
