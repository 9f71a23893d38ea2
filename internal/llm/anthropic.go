package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// AnthropicProvider summarizes with the Messages API.
type AnthropicProvider struct {
	base
	apiKey  string
	baseURL string
	timeout time.Duration
	client  anthropic.Client
}

// NewAnthropicProvider creates an Anthropic provider. The SDK's own retries
// are disabled; the retry package owns backoff.
func NewAnthropicProvider(name string, cfg ProviderConfig, apiKey string, timeout time.Duration) *AnthropicProvider {
	p := &AnthropicProvider{
		base:    base{name: name, model: cfg.Model, maxTokens: cfg.MaxTokens, contextTokens: cfg.ContextTokens},
		apiKey:  apiKey,
		baseURL: cfg.BaseURL,
		timeout: timeout,
	}
	p.client = p.newClient(apiKey)
	L_debug("llm: anthropic provider created", "name", name, "model", cfg.Model)
	return p
}

func (p *AnthropicProvider) newClient(key string) anthropic.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithHTTPClient(&http.Client{Timeout: p.timeout}),
		option.WithMaxRetries(0),
	}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	return anthropic.NewClient(opts...)
}

func (p *AnthropicProvider) Name() string        { return p.name }
func (p *AnthropicProvider) RequiresAPIKey() bool { return true }

// ValidateAPIKey lists models with key.
func (p *AnthropicProvider) ValidateAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	client := p.newClient(key)
	_, err := client.Models.List(ctx, anthropic.ModelListParams{})
	return validationResult(p.name, err)
}

func (p *AnthropicProvider) Summarize(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Summary, error) {
	if p.apiKey == "" {
		return types.Summary{}, missingKey(p.name)
	}
	return p.run(ctx, req, progress, tok, p.chat)
}

func (p *AnthropicProvider) chat(ctx context.Context, system, user string, maxTokens int) (completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return completion{}, err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return completion{
		Text:         sb.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}
