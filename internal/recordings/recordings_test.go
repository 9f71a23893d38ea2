package recordings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/types"
)

// minimal PCM WAV header, enough for MIME sniffing
var wavHeader = []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x80\x3e\x00\x00\x00\x7d\x00\x00\x02\x00\x10\x00data\x00\x00\x00\x00")

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "voxnote.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec, err := s.Add(ctx, Recording{Path: "/inbox/standup.m4a"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if rec.ID == "" || rec.Title != "standup" {
		t.Fatalf("Add defaults = %+v", rec)
	}

	again, err := s.Add(ctx, Recording{Path: "/inbox/standup.m4a"})
	if err != nil || again.ID != rec.ID {
		t.Fatalf("duplicate path: %+v, %v", again, err)
	}

	pending, err := s.Pending(ctx)
	if err != nil || len(pending) != 1 || !pending[0].NeedsTranscript() {
		t.Fatalf("Pending = %+v, %v", pending, err)
	}

	tr := types.Transcript{
		Text:     "hello there",
		Provider: "openai",
		Segments: []types.Segment{{Speaker: 1, Start: 0, End: 2 * time.Second, Text: "hello there"}},
	}
	if err := s.SaveTranscript(ctx, rec.ID, tr); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.NeedsSummary() || got.Transcript.Segments[0].End != 2*time.Second {
		t.Fatalf("after transcript = %+v", got)
	}

	if err := s.SaveSummary(ctx, rec.ID, types.Summary{Clean: "Greeting.", Provider: "local", Length: types.LengthBrief}); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}
	pending, _ = s.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("pending after summary = %d", len(pending))
	}

	// a new transcript invalidates the old summary
	if err := s.SaveTranscript(ctx, rec.ID, tr); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, rec.ID)
	if got.Summary != nil {
		t.Error("summary kept after re-transcription")
	}
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.Get(ctx, "nope"); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("Get: %v", err)
	}
	if err := s.SaveSummary(ctx, "nope", types.Summary{}); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("SaveSummary: %v", err)
	}
	if _, err := s.Add(ctx, Recording{}); err == nil {
		t.Error("Add with empty path succeeded")
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "voxnote.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := s.Add(ctx, Recording{Path: "/a.wav", Title: "A"})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, rec.ID)
	if err != nil || got.Title != "A" {
		t.Fatalf("Get after reopen = %+v, %v", got, err)
	}
}

func TestWatcherScanAndEvents(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	inbox := filepath.Join(t.TempDir(), "inbox")

	found := make(chan Recording, 4)
	w, err := NewWatcher(inbox, s, Config{DebounceMs: 20, Language: "en"}, func(r Recording) { found <- r })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(inbox, "early.wav"), wavHeader, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("not audio"), 0600); err != nil {
		t.Fatal(err)
	}
	if n := w.Scan(ctx); n != 1 {
		t.Fatalf("Scan added %d, want 1", n)
	}
	if n := w.Scan(ctx); n != 0 {
		t.Fatalf("second Scan added %d, want 0", n)
	}
	<-found

	w.Start()
	if err := os.WriteFile(filepath.Join(inbox, "late.wav"), wavHeader, 0600); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-found:
		if filepath.Base(r.Path) != "late.wav" || r.Language != "en" {
			t.Errorf("new recording = %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report late.wav")
	}
}

func TestIsAudioName(t *testing.T) {
	tests := map[string]bool{
		"a.M4A": true, "b.opus": true, "c.txt": false, "noext": false, "d.flac": true,
	}
	for name, want := range tests {
		if got := IsAudioName(name); got != want {
			t.Errorf("IsAudioName(%q) = %v", name, got)
		}
	}
}
