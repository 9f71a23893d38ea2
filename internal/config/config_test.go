package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"voxnote.json", FormatJSON},
		{"voxnote.toml", FormatTOML},
		{"voxnote.yaml", FormatYAML},
		{"VOXNOTE.YML", FormatYAML},
		{"voxnote", FormatJSON},
	}
	for _, tt := range tests {
		if got := FormatOf(tt.path); got != tt.want {
			t.Errorf("FormatOf(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestLoadFileFillsDefaults(t *testing.T) {
	files := map[string]string{
		"voxnote.json": `{"stt": {"provider": "groq"}, "operations": {"maxConcurrent": 2}}`,
		"voxnote.toml": "[stt]\nprovider = \"groq\"\n\n[operations]\nmaxConcurrent = 2\n",
		"voxnote.yaml": "stt:\n  provider: groq\noperations:\n  maxConcurrent: 2\n",
	}
	def := Default()

	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := os.WriteFile(path, []byte(body), 0600); err != nil {
				t.Fatal(err)
			}
			cfg, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			if cfg.STT.Provider != "groq" {
				t.Errorf("stt.provider = %q", cfg.STT.Provider)
			}
			if cfg.Operations.MaxConcurrent != 2 {
				t.Errorf("maxConcurrent = %d", cfg.Operations.MaxConcurrent)
			}
			if cfg.Operations.GracePeriodSeconds != def.Operations.GracePeriodSeconds {
				t.Errorf("grace period not defaulted: %v", cfg.Operations.GracePeriodSeconds)
			}
			if cfg.STT.OpenAI.Model != def.STT.OpenAI.Model {
				t.Errorf("openai model not defaulted: %q", cfg.STT.OpenAI.Model)
			}
			if cfg.HTTP.Listen != def.HTTP.Listen {
				t.Errorf("listen = %q", cfg.HTTP.Listen)
			}
			if strings.HasPrefix(cfg.Recordings.Database, "~") {
				t.Errorf("database path not expanded: %s", cfg.Recordings.Database)
			}
		})
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Error("expected parse error")
	}

	overlap := filepath.Join(dir, "overlap.yaml")
	body := "summarize:\n  chunkSize: 1000\n  chunkOverlap: 1000\n"
	if err := os.WriteFile(overlap, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(overlap); err == nil || !strings.Contains(err.Error(), "chunkOverlap") {
		t.Errorf("err = %v, want overlap error", err)
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	for _, name := range []string{"voxnote.json", "voxnote.toml", "voxnote.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := WriteDefault(path); err != nil {
				t.Fatalf("WriteDefault: %v", err)
			}
			cfg, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			if cfg.LLM.Default != Default().LLM.Default {
				t.Errorf("llm.default = %q", cfg.LLM.Default)
			}
			if len(cfg.LLM.Providers) != len(Default().LLM.Providers) {
				t.Errorf("providers = %d", len(cfg.LLM.Providers))
			}
		})
	}
}

func TestSaveKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxnote.json")

	cfg := Default()
	for i := 0; i < 3; i++ {
		cfg.Operations.MaxConcurrent = i + 1
		if err := Save(path, cfg); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	backups := ListBackups(path)
	if len(backups) != 2 {
		t.Fatalf("backups = %d, want 2", len(backups))
	}
	for i, b := range backups {
		if b.Index != i || b.Path != backupPath(path, i) || b.Size == 0 {
			t.Errorf("backup %d = %+v", i, b)
		}
	}

	restored, err := RestoreBackup(path, 0)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if restored.Operations.MaxConcurrent != 2 {
		t.Errorf("returned maxConcurrent = %d, want 2", restored.Operations.MaxConcurrent)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Operations.MaxConcurrent != 2 {
		t.Errorf("restored maxConcurrent = %d, want 2", loaded.Operations.MaxConcurrent)
	}

	// the replaced version is now the newest backup
	if got := len(ListBackups(path)); got != 3 {
		t.Fatalf("backups after restore = %d, want 3", got)
	}
	undo, err := RestoreBackup(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if undo.Operations.MaxConcurrent != 3 {
		t.Errorf("undo maxConcurrent = %d, want 3", undo.Operations.MaxConcurrent)
	}
}

func TestBackupRotationKeepsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxnote.yaml")
	for i := 0; i < DefaultBackupCount+3; i++ {
		if err := BackupAndWrite(path, []byte(fmt.Sprintf("logLevel: v%d\n", i)), DefaultBackupCount); err != nil {
			t.Fatal(err)
		}
	}
	backups := ListBackups(path)
	if len(backups) != DefaultBackupCount {
		t.Fatalf("backups = %d, want %d", len(backups), DefaultBackupCount)
	}
	newest, err := os.ReadFile(backups[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	if want := fmt.Sprintf("logLevel: v%d\n", DefaultBackupCount+1); string(newest) != want {
		t.Errorf("newest backup = %q, want %q", newest, want)
	}
}

func TestRestoreBackupRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxnote.json")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := RestoreBackup(path, 0); err == nil {
		t.Error("restored a backup that does not exist")
	}
	if err := os.WriteFile(backupPath(path, 0), []byte(`{"operations": {"maxConcurrent": -1}}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := RestoreBackup(path, 0); err == nil {
		t.Error("restored an invalid config")
	}
	if err := os.WriteFile(backupPath(path, 1), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := RestoreBackup(path, 1); err == nil {
		t.Error("restored a malformed config")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Error("failed restore changed the config file")
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	if err := AtomicWrite(path, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.txt" {
		t.Errorf("dir entries = %v", entries)
	}
}
