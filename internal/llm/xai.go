package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roelfdiedericks/xai-go"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// XAIProvider summarizes with Grok over the xAI gRPC API.
type XAIProvider struct {
	base
	apiKey  string
	timeout time.Duration

	clientMu sync.Mutex
	client   *xai.Client
}

// NewXAIProvider creates an xAI provider. The connection is opened lazily.
func NewXAIProvider(name string, cfg ProviderConfig, apiKey string, timeout time.Duration) *XAIProvider {
	L_debug("llm: xai provider created", "name", name, "model", cfg.Model)
	return &XAIProvider{
		base:    base{name: name, model: cfg.Model, maxTokens: cfg.MaxTokens, contextTokens: cfg.ContextTokens},
		apiKey:  apiKey,
		timeout: timeout,
	}
}

func (p *XAIProvider) newClient(key string) (*xai.Client, error) {
	client, err := xai.New(xai.Config{
		APIKey:  xai.NewSecureString(key),
		Timeout: p.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create xai client: %w", err)
	}
	return client, nil
}

// getClient returns the shared connection, creating it on first use.
func (p *XAIProvider) getClient() (*xai.Client, error) {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := p.newClient(p.apiKey)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *XAIProvider) Name() string        { return p.name }
func (p *XAIProvider) RequiresAPIKey() bool { return true }

// ValidateAPIKey lists models with key.
func (p *XAIProvider) ValidateAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	client, err := p.newClient(key)
	if err != nil {
		return false, mapError(p.name, err)
	}
	_, err = client.ListModels(ctx)
	return validationResult(p.name, err)
}

func (p *XAIProvider) Summarize(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Summary, error) {
	if p.apiKey == "" {
		return types.Summary{}, missingKey(p.name)
	}
	return p.run(ctx, req, progress, tok, p.chat)
}

func (p *XAIProvider) chat(ctx context.Context, system, user string, maxTokens int) (completion, error) {
	client, err := p.getClient()
	if err != nil {
		return completion{}, err
	}

	req := xai.NewChatRequest().
		WithModel(p.model).
		WithMaxTokens(clampInt32(maxTokens))
	if system != "" {
		req.SystemMessage(xai.SystemContent{Text: system})
	}
	req.UserMessage(xai.UserContent{Text: user})

	resp, err := client.CompleteChat(ctx, req)
	if err != nil {
		return completion{}, err
	}
	return completion{
		Text:         resp.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
