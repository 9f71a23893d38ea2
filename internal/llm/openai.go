package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// OpenAIProvider summarizes with the chat completions API. It also serves
// any OpenAI-compatible endpoint through BaseURL.
type OpenAIProvider struct {
	base
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *openai.Client
}

// NewOpenAIProvider creates an OpenAI-compatible provider. An empty key is
// accepted; Summarize then fails with api_key_missing.
func NewOpenAIProvider(name string, cfg ProviderConfig, apiKey string, timeout time.Duration) *OpenAIProvider {
	p := &OpenAIProvider{
		base:    base{name: name, model: cfg.Model, maxTokens: cfg.MaxTokens, contextTokens: cfg.ContextTokens},
		apiKey:  apiKey,
		baseURL: normalizeOpenAIBaseURL(cfg.BaseURL),
		timeout: timeout,
	}
	p.client = p.newClient(apiKey)
	L_debug("llm: openai provider created", "name", name, "model", cfg.Model, "baseURL", p.baseURL)
	return p
}

// normalizeOpenAIBaseURL ensures compatible endpoints end with /v1.
func normalizeOpenAIBaseURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	if !strings.HasSuffix(baseURL, "/v1") && !strings.HasSuffix(baseURL, "/v1/") {
		baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	}
	return baseURL
}

func (p *OpenAIProvider) newClient(key string) *openai.Client {
	config := openai.DefaultConfig(key)
	if p.baseURL != "" {
		config.BaseURL = p.baseURL
	}
	config.HTTPClient = &http.Client{Timeout: p.timeout}
	return openai.NewClientWithConfig(config)
}

func (p *OpenAIProvider) Name() string        { return p.name }
func (p *OpenAIProvider) RequiresAPIKey() bool { return true }

// ValidateAPIKey lists models with key.
func (p *OpenAIProvider) ValidateAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	_, err := p.newClient(key).ListModels(ctx)
	return validationResult(p.name, err)
}

func (p *OpenAIProvider) Summarize(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Summary, error) {
	if p.apiKey == "" {
		return types.Summary{}, missingKey(p.name)
	}
	return p.run(ctx, req, progress, tok, p.chat)
}

func (p *OpenAIProvider) chat(ctx context.Context, system, user string, maxTokens int) (completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages:  messages,
	})
	if err != nil {
		return completion{}, err
	}
	if len(resp.Choices) == 0 {
		return completion{}, nil
	}
	return completion{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func missingKey(provider string) error {
	return &types.Error{Kind: types.KindAPIKeyMissing, Op: opSummarize, Provider: provider, Message: "no API key configured"}
}

// validationResult turns a validation call's error into the (valid, err)
// pair: auth failures mean an invalid key, anything else is reported.
func validationResult(provider string, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	mapped := mapError(provider, err)
	switch types.KindOf(mapped) {
	case types.KindAPIKeyMissing, types.KindPermissionDenied:
		return false, nil
	}
	return false, mapped
}
