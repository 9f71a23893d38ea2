package credentials

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLookupOrder(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	content := "ANTHROPIC_API_KEY=from-dotenv\nGROQ_API_KEY=groq-dotenv\nGOOGLE_API_KEY=gemini-alias\n"
	if err := os.WriteFile(dotenv, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := New(Config{
		Keys:   map[string]string{"OpenAI": " from-config ", "groq": ""},
		DotEnv: dotenv,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env := map[string]string{
		"OPENAI_API_KEY":    "from-env",
		"ANTHROPIC_API_KEY": "from-env",
	}
	s.lookup = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	tests := []struct {
		id     string
		want   string
		wantOK bool
	}{
		{"openai", "from-config", true},
		{"anthropic", "from-env", true},
		{"groq", "groq-dotenv", true},
		{"gemini", "gemini-alias", true},
		{"xai", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := s.APIKey(tt.id)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("APIKey(%q) = %q, %v; want %q, %v", tt.id, got, ok, tt.want, tt.wantOK)
		}
		if s.HasKey(tt.id) != tt.wantOK {
			t.Errorf("HasKey(%q) mismatch", tt.id)
		}
	}
}

func TestNoEnvAndSet(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "leaked")
	s := FromMap(nil)
	if s.HasKey("openai") {
		t.Fatal("NoEnv store read the environment")
	}
	s.Set("openai", "k1")
	if k, _ := s.APIKey("OPENAI"); k != "k1" {
		t.Errorf("after Set: %q", k)
	}
	s.Set("openai", "")
	if s.HasKey("openai") {
		t.Error("empty Set should remove the key")
	}
}

func TestExplicitMissingDotEnvIsTolerated(t *testing.T) {
	if _, err := New(Config{DotEnv: filepath.Join(t.TempDir(), "nope.env"), NoEnv: true}); err != nil {
		t.Fatalf("New: %v", err)
	}
}
