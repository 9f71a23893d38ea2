package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// OllamaProvider summarizes with a local Ollama server. No key is needed.
type OllamaProvider struct {
	base
	url    string
	client *http.Client
}

// ollamaChatRequest is the request body for Ollama chat API
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  *ollamaOptions      `json:"options,omitempty"`
}

type ollamaOptions struct {
	NumCtx     int `json:"num_ctx,omitempty"`
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message         ollamaChatMessage `json:"message"`
	Done            bool              `json:"done"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllamaProvider creates an Ollama provider for cfg.BaseURL.
func NewOllamaProvider(name string, cfg ProviderConfig, timeout time.Duration) (*OllamaProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama URL not configured")
	}
	url := strings.TrimSuffix(cfg.BaseURL, "/")
	L_debug("llm: ollama provider created", "name", name, "url", url, "model", cfg.Model)
	return &OllamaProvider{
		base:   base{name: name, model: cfg.Model, maxTokens: cfg.MaxTokens, contextTokens: cfg.ContextTokens},
		url:    url,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (p *OllamaProvider) Name() string        { return p.name }
func (p *OllamaProvider) RequiresAPIKey() bool { return false }

// ValidateAPIKey checks the server is reachable; keys are ignored.
func (p *OllamaProvider) ValidateAPIKey(ctx context.Context, _ string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, mapError(p.name, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, mapError(p.name, &httpStatusError{status: resp.StatusCode})
	}
	return true, nil
}

func (p *OllamaProvider) Summarize(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Summary, error) {
	return p.run(ctx, req, progress, tok, p.chat)
}

func (p *OllamaProvider) chat(ctx context.Context, system, user string, maxTokens int) (completion, error) {
	messages := []ollamaChatMessage{}
	if system != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: user})

	body, err := json.Marshal(ollamaChatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   false,
		Options:  &ollamaOptions{NumCtx: p.contextTokens, NumPredict: maxTokens},
	})
	if err != nil {
		return completion{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return completion{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	L_trace("ollama: request prepared", "url", p.url, "model", p.model, "messageCount", len(messages))

	resp, err := p.client.Do(req)
	if err != nil {
		return completion{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var oe ollamaError
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &oe) == nil && oe.Error != "" {
			msg = oe.Error
		}
		L_debug("ollama: request failed", "status", resp.StatusCode, "body", msg)
		return completion{}, &httpStatusError{status: resp.StatusCode, message: msg}
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return completion{}, &types.Error{Kind: types.KindInvalidResponse, Op: opSummarize, Provider: p.name, Message: "decode response", Cause: err}
	}
	return completion{
		Text:         result.Message.Content,
		InputTokens:  result.PromptEvalCount,
		OutputTokens: result.EvalCount,
	}, nil
}
