package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/chunking"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

type fakeRunner struct {
	calls  [][]string
	stdout string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return CommandResult{Stderr: "boom\nInvalid data found", ExitCode: 1}, f.err
	}
	return CommandResult{Stdout: f.stdout}, nil
}

func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}

func TestDurationParsesProbeOutput(t *testing.T) {
	r := &fakeRunner{stdout: "1234.500000\n"}
	tools := NewToolsWithRunner(Config{}, r)

	d, err := tools.Duration(context.Background(), "in.m4a")
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if d != 1234500*time.Millisecond {
		t.Errorf("Duration = %v", d)
	}
	if r.calls[0][0] != "ffprobe" {
		t.Errorf("ran %q, want ffprobe", r.calls[0][0])
	}
}

func TestExportBuildsWindowArgs(t *testing.T) {
	r := &fakeRunner{}
	tools := NewToolsWithRunner(Config{SegmentBitrate: "64k"}, r)

	w := chunking.AudioWindow{Index: 2, Start: 16 * time.Minute, Duration: 8 * time.Minute}
	out, err := tools.Export(context.Background(), "in.wav", w, "/tmp/x", FormatM4A)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if out != filepath.Join("/tmp/x", "chunk-002.m4a") {
		t.Errorf("out = %s", out)
	}
	args := r.calls[0]
	if got := argValue(args, "-ss"); got != "960.000" {
		t.Errorf("-ss = %s", got)
	}
	if got := argValue(args, "-t"); got != "480.000" {
		t.Errorf("-t = %s", got)
	}
	if got := argValue(args, "-b:a"); got != "64k" {
		t.Errorf("-b:a = %s", got)
	}

	out, err = tools.Export(context.Background(), "in.wav", w, "/tmp/x", FormatFLAC)
	if err != nil {
		t.Fatalf("Export flac: %v", err)
	}
	if filepath.Ext(out) != ".flac" || argValue(r.calls[1], "-c:a") != "flac" {
		t.Errorf("flac export = %s %v", out, r.calls[1])
	}
}

func TestToolFailureIsMediaError(t *testing.T) {
	r := &fakeRunner{err: errors.New("exit status 1")}
	tools := NewToolsWithRunner(Config{}, r)

	_, err := tools.Compress(context.Background(), "in.wav", t.TempDir(), FormatM4A)
	if !types.IsKind(err, types.KindMedia) {
		t.Fatalf("err = %v, want media", err)
	}
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("err does not wrap ToolError: %v", err)
	}
	if te.Stage != "compress" || te.ExitCode != 1 {
		t.Errorf("ToolError = %+v", te)
	}
}

func TestToolFailureAfterCancelIsCancelled(t *testing.T) {
	r := &fakeRunner{err: errors.New("signal: killed")}
	tools := NewToolsWithRunner(Config{}, r)

	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()
	_, err := tools.Compress(ctx, "in.wav", t.TempDir(), FormatM4A)
	if !types.IsCancelled(err) {
		t.Fatalf("err = %v, want cancelled", err)
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()

	if _, err := Inspect(filepath.Join(dir, "missing.wav")); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("missing file: %v", err)
	}

	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("just some text"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Inspect(txt); !types.IsKind(err, types.KindInvalidResponse) {
		t.Errorf("text file: %v", err)
	}

	wav := filepath.Join(dir, "a.wav")
	header := []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x80\x3e\x00\x00\x00\x7d\x00\x00\x02\x00\x10\x00data\x00\x00\x00\x00")
	if err := os.WriteFile(wav, header, 0600); err != nil {
		t.Fatal(err)
	}
	info, err := Inspect(wav)
	if err != nil {
		t.Fatalf("wav: %v", err)
	}
	if info.Size != int64(len(header)) {
		t.Errorf("size = %d", info.Size)
	}
}

func TestScratchLifecycle(t *testing.T) {
	base := t.TempDir()
	s, err := NewScratch(base, "rec/1")
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	f := filepath.Join(s.Dir(), "chunk-000.m4a")
	if err := os.WriteFile(f, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	s.Remove(f)
	if _, err := os.Stat(f); !os.IsNotExist(err) {
		t.Error("file not removed")
	}
	dir := s.Dir()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("scratch dir not removed")
	}
}

func TestCleanStale(t *testing.T) {
	base := t.TempDir()
	old := filepath.Join(base, scratchPrefix+"old-1")
	fresh := filepath.Join(base, scratchPrefix+"fresh-1")
	other := filepath.Join(base, "keep-me")
	for _, d := range []string{old, fresh, other} {
		if err := os.Mkdir(d, 0750); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(other, past, past); err != nil {
		t.Fatal(err)
	}

	if n := CleanStale(base, time.Hour); n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh dir removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("unrelated dir removed")
	}
}

func TestToMonoAndFloat(t *testing.T) {
	mono := toMono([]int16{100, 300, -200, -400}, 2)
	if len(mono) != 2 || mono[0] != 200 || mono[1] != -300 {
		t.Errorf("toMono = %v", mono)
	}
	f := int16ToFloat32([]int16{-32768, 0, 16384})
	if f[0] != -1 || f[1] != 0 || f[2] != 0.5 {
		t.Errorf("int16ToFloat32 = %v", f)
	}
}
