package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

func jsonServer(t *testing.T, path string, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, path) {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testRequest() Request {
	return Request{Transcript: "We agreed to ship on Friday.", Length: types.LengthBrief, Prompt: "Summarize."}
}

func TestOpenAISummarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != openai.ChatMessageRoleSystem {
			t.Errorf("messages = %+v", req.Messages)
		}
		if req.MaxTokens != types.LengthBrief.MaxTokens() {
			t.Errorf("max_tokens = %d", req.MaxTokens)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"## Decision\n- **Ship** Friday"},"finish_reason":"stop"}],"usage":{"prompt_tokens":20,"completion_tokens":6,"total_tokens":26}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", ProviderConfig{Driver: "openai", Model: "gpt-4o-mini", BaseURL: srv.URL}, "sk-test", time.Minute)
	var last float64
	sum, err := p.Summarize(context.Background(), testRequest(), func(f float64) { last = f }, cancel.Never())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Raw != "## Decision\n- **Ship** Friday" || sum.Provider != "openai" || sum.Length != types.LengthBrief {
		t.Errorf("summary = %+v", sum)
	}
	if last != 1 {
		t.Errorf("final progress = %v", last)
	}
}

func TestOpenAIStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		kind   types.Kind
	}{
		{401, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`, types.KindAPIKeyMissing},
		{429, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`, types.KindQuotaExceeded},
		{400, `{"error":{"message":"This model's maximum context length is 128000 tokens","type":"invalid_request_error","code":"context_length_exceeded"}}`, types.KindTextTooLong},
		{503, `{"error":{"message":"overloaded","type":"server_error"}}`, types.KindNetwork},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			srv := jsonServer(t, "/chat/completions", tt.status, tt.body)
			p := NewOpenAIProvider("openai", ProviderConfig{Model: "gpt-4o-mini", BaseURL: srv.URL}, "sk-test", time.Minute)
			_, err := p.Summarize(context.Background(), testRequest(), nil, cancel.Never())
			if !types.IsKind(err, tt.kind) {
				t.Fatalf("err = %v, want %s", err, tt.kind)
			}
			if got := types.StatusCode(err); got != tt.status {
				t.Errorf("status = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestAnthropicSummarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "ak-test" {
			t.Errorf("api key header = %q", r.Header.Get("X-Api-Key"))
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["system"]; !ok {
			t.Error("system prompt not sent")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[{"type":"text","text":"Ship on Friday."}],"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":4}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("anthropic", ProviderConfig{Model: "claude-sonnet-4-5", BaseURL: srv.URL}, "ak-test", time.Minute)
	sum, err := p.Summarize(context.Background(), testRequest(), nil, cancel.Never())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Raw != "Ship on Friday." {
		t.Errorf("raw = %q", sum.Raw)
	}
}

func TestAnthropicUnauthorizedIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("anthropic", ProviderConfig{Model: "claude-sonnet-4-5", BaseURL: srv.URL}, "bad", time.Minute)
	_, err := p.Summarize(context.Background(), testRequest(), nil, cancel.Never())
	if !types.IsKind(err, types.KindAPIKeyMissing) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	ok, err := p.ValidateAPIKey(context.Background(), "bad")
	if ok || err != nil {
		t.Errorf("ValidateAPIKey = %v, %v; want false, nil", ok, err)
	}
}

func TestOllamaSummarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			var req ollamaChatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode: %v", err)
			}
			if req.Stream || req.Options == nil || req.Options.NumPredict != types.LengthBrief.MaxTokens() {
				t.Errorf("request = %+v", req)
			}
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"Ship Friday."},"done":true,"prompt_eval_count":9,"eval_count":3}`)
		case "/api/tags":
			fmt.Fprint(w, `{"models":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p, err := NewOllamaProvider("ollama", ProviderConfig{Model: "llama3.2", BaseURL: srv.URL + "/"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if p.RequiresAPIKey() {
		t.Error("ollama should not require a key")
	}
	sum, err := p.Summarize(context.Background(), testRequest(), nil, cancel.Never())
	if err != nil || sum.Raw != "Ship Friday." {
		t.Fatalf("Summarize = %+v, %v", sum, err)
	}
	if ok, err := p.ValidateAPIKey(context.Background(), ""); !ok || err != nil {
		t.Errorf("ValidateAPIKey = %v, %v", ok, err)
	}
}

func TestOllamaErrorBody(t *testing.T) {
	srv := jsonServer(t, "/api/chat", http.StatusNotFound, `{"error":"model 'nope' not found"}`)
	p, _ := NewOllamaProvider("ollama", ProviderConfig{Model: "nope", BaseURL: srv.URL}, time.Minute)
	_, err := p.Summarize(context.Background(), testRequest(), nil, cancel.Never())
	if !types.IsKind(err, types.KindNotFound) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("message lost: %v", err)
	}
}

func TestRunGuards(t *testing.T) {
	called := false
	chat := func(ctx context.Context, system, user string, maxTokens int) (completion, error) {
		called = true
		return completion{Text: "ok"}, nil
	}
	b := base{name: "fake", model: "m", contextTokens: 100}

	_, err := b.run(context.Background(), Request{Transcript: "  \n", Length: types.LengthBrief}, nil, cancel.Never(), chat)
	if !types.IsKind(err, types.KindEmptyText) {
		t.Errorf("blank transcript: %v", err)
	}

	_, err = b.run(context.Background(), testRequest(), nil, cancel.Cancelled(), chat)
	if !types.IsCancelled(err) {
		t.Errorf("cancelled token: %v", err)
	}

	long := Request{Transcript: strings.Repeat("word ", 2000), Length: types.LengthBrief}
	_, err = b.run(context.Background(), long, nil, cancel.Never(), chat)
	if !types.IsKind(err, types.KindTextTooLong) {
		t.Errorf("oversized transcript: %v", err)
	}
	if called {
		t.Error("backend called despite failed guard")
	}

	empty := func(ctx context.Context, system, user string, maxTokens int) (completion, error) {
		return completion{Text: "   "}, nil
	}
	_, err = base{name: "fake"}.run(context.Background(), testRequest(), nil, cancel.Never(), empty)
	if !types.IsKind(err, types.KindInvalidResponse) {
		t.Errorf("empty completion: %v", err)
	}
}

func TestRunCancelledDuringCallWins(t *testing.T) {
	cancelled := false
	tok := cancel.New(func() bool { return cancelled })
	chat := func(ctx context.Context, system, user string, maxTokens int) (completion, error) {
		cancelled = true
		return completion{}, &httpStatusError{status: 503}
	}
	_, err := base{name: "fake"}.run(context.Background(), testRequest(), nil, tok, chat)
	if !types.IsCancelled(err) {
		t.Fatalf("err = %v, want cancelled", err)
	}
}

func TestMissingKey(t *testing.T) {
	p := NewOpenAIProvider("openai", ProviderConfig{Model: "gpt-4o-mini"}, "", time.Minute)
	_, err := p.Summarize(context.Background(), testRequest(), nil, cancel.Never())
	if !types.IsKind(err, types.KindAPIKeyMissing) {
		t.Fatalf("err = %v", err)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   types.Kind
		status int
	}{
		{"openai api", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, types.KindQuotaExceeded, 429},
		{"openai request", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, types.KindNetwork, 502},
		{"anthropic", &anthropic.Error{
			StatusCode: 403,
			Request:    httptest.NewRequest(http.MethodPost, "/v1/messages", nil),
			Response:   &http.Response{StatusCode: 403},
		}, types.KindPermissionDenied, 403},
		{"genai", genai.APIError{Code: 401, Message: "API key not valid"}, types.KindAPIKeyMissing, 401},
		{"http overflow", &httpStatusError{status: 400, message: "prompt is too long"}, types.KindTextTooLong, 400},
		{"deadline", context.DeadlineExceeded, types.KindNetwork, 0},
		{"message rate limit", errors.New("rpc error: code = ResourceExhausted desc = rate limit"), types.KindQuotaExceeded, 0},
		{"message auth", errors.New("rpc error: code = Unauthenticated desc = invalid api key"), types.KindAPIKeyMissing, 0},
		{"cancelled", context.Canceled, types.KindCancelled, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError("p", tt.err)
			if !types.IsKind(got, tt.kind) {
				t.Errorf("kind = %s, want %s (%v)", types.KindOf(got), tt.kind, got)
			}
			if s := types.StatusCode(got); s != tt.status {
				t.Errorf("status = %d, want %d", s, tt.status)
			}
		})
	}
}

type mapKeys map[string]string

func (m mapKeys) APIKey(id string) (string, bool) {
	k, ok := m[id]
	return k, ok && k != ""
}

func TestBuildRegistry(t *testing.T) {
	cfg := DefaultConfig()
	r, err := Build(cfg, mapKeys{"anthropic": "ak"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := strings.Join(r.Names(), ","); got != "openai,anthropic,gemini,xai,ollama" {
		t.Errorf("names = %s", got)
	}
	if r.Default() != "openai" {
		t.Errorf("default = %s", r.Default())
	}
	if err := r.Validate("openai", "mistral"); !types.IsKind(err, types.KindNotFound) || !strings.Contains(err.Error(), "mistral") {
		t.Errorf("Validate = %v", err)
	}

	cfg.Default = "mistral"
	if _, err := Build(cfg, mapKeys{}); err == nil {
		t.Error("unknown default accepted")
	}

	cfg = DefaultConfig()
	cfg.Providers["local"] = ProviderConfig{Driver: "llamafile", Model: "x"}
	if _, err := Build(cfg, mapKeys{}); err == nil {
		t.Error("unknown driver accepted")
	}
}
