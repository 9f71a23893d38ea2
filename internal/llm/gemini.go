package llm

import (
	"context"
	"math"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// GeminiProvider summarizes with the Gemini API.
type GeminiProvider struct {
	base
	apiKey  string
	baseURL string
	timeout time.Duration
}

// NewGeminiProvider creates a Gemini provider. Clients are created per call.
func NewGeminiProvider(name string, cfg ProviderConfig, apiKey string, timeout time.Duration) *GeminiProvider {
	L_debug("llm: gemini provider created", "name", name, "model", cfg.Model)
	return &GeminiProvider{
		base:    base{name: name, model: cfg.Model, maxTokens: cfg.MaxTokens, contextTokens: cfg.ContextTokens},
		apiKey:  apiKey,
		baseURL: cfg.BaseURL,
		timeout: timeout,
	}
}

func (p *GeminiProvider) newClient(ctx context.Context, key string) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: p.timeout},
	}
	if p.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	return genai.NewClient(ctx, cc)
}

func (p *GeminiProvider) Name() string        { return p.name }
func (p *GeminiProvider) RequiresAPIKey() bool { return true }

// ValidateAPIKey lists models with key.
func (p *GeminiProvider) ValidateAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	client, err := p.newClient(ctx, key)
	if err != nil {
		return false, mapError(p.name, err)
	}
	_, err = client.Models.List(ctx, nil)
	return validationResult(p.name, err)
}

func (p *GeminiProvider) Summarize(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Summary, error) {
	if p.apiKey == "" {
		return types.Summary{}, missingKey(p.name)
	}
	return p.run(ctx, req, progress, tok, p.chat)
}

func (p *GeminiProvider) chat(ctx context.Context, system, user string, maxTokens int) (completion, error) {
	client, err := p.newClient(ctx, p.apiKey)
	if err != nil {
		return completion{}, err
	}

	cfg := &genai.GenerateContentConfig{MaxOutputTokens: clampInt32(maxTokens)}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	result, err := client.Models.GenerateContent(ctx, p.model, genai.Text(user), cfg)
	if err != nil {
		return completion{}, err
	}
	if result == nil {
		return completion{}, nil
	}

	c := completion{Text: result.Text()}
	if u := result.UsageMetadata; u != nil {
		c.InputTokens = int(u.PromptTokenCount)
		c.OutputTokens = int(u.CandidatesTokenCount)
	}
	return c, nil
}

func clampInt32(n int) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	if n < 0 {
		return 0
	}
	return int32(n)
}
