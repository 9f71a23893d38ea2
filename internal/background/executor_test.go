package background

import "testing"

func TestTrackerWindows(t *testing.T) {
	var restarted []string
	tr := NewTracker(func(ids []string) { restarted = append(restarted, ids...) })

	a := tr.Begin("transcription:rec-1")
	b := tr.Begin("summarization:rec-1")
	if a.ID == b.ID {
		t.Fatal("window ids collide")
	}
	if n := len(tr.Open()); n != 2 {
		t.Fatalf("open = %d", n)
	}

	tr.End(a)
	tr.End(a)
	if n := len(tr.Open()); n != 1 {
		t.Fatalf("open after End = %d", n)
	}
	tr.End(b)

	tr.RestartNeeded(nil)
	tr.RestartNeeded([]string{"op-1", "op-2"})
	if len(restarted) != 2 || restarted[0] != "op-1" {
		t.Errorf("restarted = %v", restarted)
	}
}
