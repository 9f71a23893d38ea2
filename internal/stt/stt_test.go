package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

func writeAudio(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("fake audio bytes"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func openAITestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAITranscribeVerboseSegments(t *testing.T) {
	srv := openAITestServer(t, http.StatusOK, `{
		"task": "transcribe", "text": " hello there. general kenobi ",
		"segments": [
			{"id": 0, "start": 0.0, "end": 1.5, "text": " hello there."},
			{"id": 1, "start": 2.25, "end": 4.0, "text": " general kenobi"}
		]}`)

	p, err := NewOpenAIProvider("sk-test", OpenAIConfig{BaseURL: srv.URL + "/v1"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	var last float64
	got, err := p.Transcribe(context.Background(), Request{AudioPath: writeAudio(t, "a.m4a")},
		func(f float64) { last = f }, cancel.Never())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "hello there. general kenobi" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Segments) != 2 || got.Segments[1].Start != 2250*time.Millisecond || got.Segments[1].Text != "general kenobi" {
		t.Errorf("Segments = %+v", got.Segments)
	}
	if got.Provider != "openai" || last != 1 {
		t.Errorf("provider = %s, last progress = %v", got.Provider, last)
	}
}

func TestOpenAIErrorsCarryStatus(t *testing.T) {
	tests := []struct {
		status int
		kind   types.Kind
	}{
		{http.StatusTooManyRequests, types.KindQuotaExceeded},
		{http.StatusUnauthorized, types.KindAPIKeyMissing},
		{http.StatusServiceUnavailable, types.KindNetwork},
	}
	for _, tt := range tests {
		srv := openAITestServer(t, tt.status, `{"error": {"message": "nope", "type": "x"}}`)
		p, _ := NewGroqProvider("gsk-test", OpenAIConfig{BaseURL: srv.URL + "/v1"}, time.Minute)

		_, err := p.Transcribe(context.Background(), Request{AudioPath: writeAudio(t, "a.m4a")}, nil, cancel.Never())
		if !types.IsKind(err, tt.kind) {
			t.Errorf("status %d: err = %v, want %s", tt.status, err, tt.kind)
		}
		if types.StatusCode(err) != tt.status {
			t.Errorf("status %d: StatusCode = %d", tt.status, types.StatusCode(err))
		}
	}
}

func TestOpenAICancelledBeforeUpload(t *testing.T) {
	p, _ := NewOpenAIProvider("sk-test", OpenAIConfig{BaseURL: "http://127.0.0.1:1/v1"}, time.Minute)
	_, err := p.Transcribe(context.Background(), Request{AudioPath: writeAudio(t, "a.m4a")}, nil, cancel.Cancelled())
	if !types.IsCancelled(err) {
		t.Fatalf("err = %v, want cancelled", err)
	}
}

func TestOpenAIMissingFile(t *testing.T) {
	p, _ := NewOpenAIProvider("sk-test", OpenAIConfig{BaseURL: "http://127.0.0.1:1/v1"}, time.Minute)
	_, err := p.Transcribe(context.Background(), Request{AudioPath: "/nonexistent/a.m4a"}, nil, cancel.Never())
	if !types.IsKind(err, types.KindNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestNewProviderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider("", OpenAIConfig{}, time.Minute); !types.IsKind(err, types.KindAPIKeyMissing) {
		t.Errorf("openai: %v", err)
	}
	if _, err := NewGoogleProvider("", GoogleConfig{}, time.Minute); !types.IsKind(err, types.KindAPIKeyMissing) {
		t.Errorf("google: %v", err)
	}
}

func TestGoogleTranscribe(t *testing.T) {
	var gotReq map[string]map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "g-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"results": [
			{"alternatives": [{"transcript": "first part", "confidence": 0.9}], "resultEndTime": "3.500s"},
			{"alternatives": [{"transcript": "second part", "confidence": 0.8}], "resultEndTime": "7s"}
		]}`))
	}))
	defer srv.Close()

	p, err := NewGoogleProvider("g-key", GoogleConfig{BaseURL: srv.URL}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Transcribe(context.Background(), Request{AudioPath: writeAudio(t, "chunk-000.flac"), Language: "en-ZA"}, nil, cancel.Never())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "first part second part" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Segments) != 2 || got.Segments[1].Start != 3500*time.Millisecond || got.Segments[1].End != 7*time.Second {
		t.Errorf("Segments = %+v", got.Segments)
	}
	if gotReq["config"]["encoding"] != "FLAC" || gotReq["config"]["languageCode"] != "en-ZA" {
		t.Errorf("config = %v", gotReq["config"])
	}
}

func TestGoogleErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"message": "API not enabled"}}`))
	}))
	defer srv.Close()

	p, _ := NewGoogleProvider("g-key", GoogleConfig{BaseURL: srv.URL}, time.Minute)
	_, err := p.Transcribe(context.Background(), Request{AudioPath: writeAudio(t, "a.flac")}, nil, cancel.Never())
	if !types.IsKind(err, types.KindPermissionDenied) || types.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "API not enabled") {
		t.Errorf("message lost: %v", err)
	}
}

type fakeProvider struct {
	name     string
	onDevice bool
	closed   bool
}

func (f *fakeProvider) Name() string          { return f.name }
func (f *fakeProvider) MaxUploadBytes() int64 { return 0 }
func (f *fakeProvider) OnDevice() bool        { return f.onDevice }
func (f *fakeProvider) Close() error          { f.closed = true; return nil }
func (f *fakeProvider) Transcribe(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Transcript, error) {
	return types.Transcript{Text: f.name, Provider: f.name}, nil
}

func TestRegistrySelectAndValidate(t *testing.T) {
	r := NewRegistry()
	cloud := &fakeProvider{name: "openai"}
	local := &fakeProvider{name: "whispercpp", onDevice: true}
	r.Register(cloud)
	r.Register(local)

	if r.Default() != "openai" {
		t.Errorf("Default = %s", r.Default())
	}
	if p, _ := r.Select("", false); p != cloud {
		t.Errorf("Select default = %v", p.Name())
	}
	if p, _ := r.Select("openai", true); p != local {
		t.Errorf("on-device preference ignored: %v", p.Name())
	}
	if _, err := r.Select("google", false); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("Select unknown: %v", err)
	}
	if err := r.Validate("openai", "whispercpp", ""); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := r.Validate("openai", "google"); err == nil || !strings.Contains(err.Error(), "google") {
		t.Errorf("Validate missing: %v", err)
	}

	r.Close()
	if !cloud.closed || !local.closed || len(r.Names()) != 0 {
		t.Error("Close did not release providers")
	}
}

type mapKeys map[string]string

func (m mapKeys) APIKey(id string) (string, bool) {
	k, ok := m[id]
	return k, ok && k != ""
}

func TestBuildRegistersKeyedProviders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WhisperCpp = WhisperCppConfig{}
	cfg.Provider = "groq"

	r := Build(cfg, mapKeys{"groq": "gsk", "google": "g"}, nil)
	names := strings.Join(r.Names(), ",")
	if names != "groq,google" {
		t.Errorf("Names = %s", names)
	}
	if r.Default() != "groq" {
		t.Errorf("Default = %s", r.Default())
	}
	if p, _ := r.Get("google"); p.MaxUploadBytes() != googleUploadLimit {
		t.Errorf("google limit = %d", p.MaxUploadBytes())
	}
}
