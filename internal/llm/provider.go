// Package llm provides the summarization providers: one interface over
// OpenAI, Anthropic, xAI, Gemini and Ollama chat backends.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	. "github.com/roelfdiedericks/voxnote/internal/metrics"
	"github.com/roelfdiedericks/voxnote/internal/tokens"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// Provider is the interface for summarization backends. Implementations
// hold no mutable state shared between calls.
type Provider interface {
	// Name returns the provider instance name (e.g. "openai", "ollama-local").
	Name() string

	// RequiresAPIKey reports whether calls need a credential.
	RequiresAPIKey() bool

	// ValidateAPIKey checks key against the backend without summarizing.
	// A rejected key returns (false, nil); transport failures return an error.
	ValidateAPIKey(ctx context.Context, key string) (bool, error)

	// Summarize runs one completion with req.Prompt as the system prompt and
	// req.Transcript as the user message.
	Summarize(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Summary, error)
}

// Request is one summarization call.
type Request struct {
	Transcript string
	Length     types.Length
	Prompt     string
	MaxTokens  int // output cap, 0 = Length.MaxTokens()
}

// completion is what a backend returns for one chat call.
type completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// chatFunc performs one non-streaming chat call.
type chatFunc func(ctx context.Context, system, user string, maxTokens int) (completion, error)

// base carries the fields and the request flow shared by every backend.
type base struct {
	name          string
	model         string
	maxTokens     int // output ceiling for this model, 0 = no ceiling
	contextTokens int // context window, 0 = unknown
}

// run validates req, guards the context window, performs the call and maps
// the result. Cancellation observed at any point wins over other errors.
func (b base) run(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token, chat chatFunc) (types.Summary, error) {
	if progress == nil {
		progress = types.NoProgress
	}
	if strings.TrimSpace(req.Transcript) == "" {
		return types.Summary{}, &types.Error{Kind: types.KindEmptyText, Op: "summarize", Provider: b.name, Message: "transcript is empty"}
	}
	if err := cancel.Check(ctx, tok); err != nil {
		return types.Summary{}, err
	}

	maxOut := req.MaxTokens
	if maxOut <= 0 {
		maxOut = req.Length.MaxTokens()
	}
	if b.maxTokens > 0 && maxOut > b.maxTokens {
		maxOut = b.maxTokens
	}

	est := tokens.Get()
	input := est.Count(req.Prompt) + est.Count(req.Transcript)
	if !tokens.Fits(input, maxOut, b.contextTokens) {
		L_warn("llm: input exceeds context window", "provider", b.name, "model", b.model, "inputTokens", input, "contextTokens", b.contextTokens)
		return types.Summary{}, &types.Error{Kind: types.KindTextTooLong, Op: "summarize", Provider: b.name,
			Message: "transcript exceeds model context window"}
	}
	progress(0.05)

	callCtx, stop := cancel.Context(ctx, tok)
	defer stop()

	topic := "llm/" + b.name
	timer := MetricTimerStart(topic, "summarize")
	defer MetricTimerStop(timer)

	start := time.Now()
	L_info("llm: request started", "provider", b.name, "model", b.model, "chars", len(req.Transcript), "maxTokens", maxOut)
	c, err := chat(callCtx, req.Prompt, req.Transcript, maxOut)
	if err != nil {
		if tok.IsCancelled() || errors.Is(ctx.Err(), context.Canceled) {
			return types.Summary{}, types.ErrCancelled
		}
		L_debug("llm: request failed", "provider", b.name, "error", err)
		mapped := mapError(b.name, err)
		MetricFailWithReason(topic, "request_status", string(types.KindOf(mapped)))
		return types.Summary{}, mapped
	}

	raw := strings.TrimSpace(c.Text)
	if raw == "" {
		MetricFailWithReason(topic, "request_status", string(types.KindInvalidResponse))
		return types.Summary{}, &types.Error{Kind: types.KindInvalidResponse, Op: "summarize", Provider: b.name, Message: "empty completion"}
	}
	progress(1)
	MetricSuccess(topic, "request_status")
	MetricAdd(topic, "input_tokens", int64(c.InputTokens))
	MetricAdd(topic, "output_tokens", int64(c.OutputTokens))

	L_info("llm: request completed", "provider", b.name, "duration", time.Since(start).Round(time.Millisecond),
		"inputTokens", c.InputTokens, "outputTokens", c.OutputTokens, "responseChars", len(raw))
	return types.Summary{
		Clean:    raw, // rendered to plain text by the summarize pipeline
		Raw:      raw,
		Provider: b.name,
		Length:   req.Length,
	}, nil
}
