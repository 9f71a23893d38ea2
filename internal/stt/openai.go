package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

const (
	groqBaseURL = "https://api.groq.com/openai/v1"

	// openAIUploadLimit is the documented per-request cap for Whisper uploads.
	openAIUploadLimit = 25 << 20
	groqUploadLimit   = 25 << 20

	// Fraction of progress reported while the upload is streaming; the rest
	// arrives when the response is parsed.
	uploadShare = 0.9
)

// OpenAIProvider implements STT over an OpenAI-compatible Whisper endpoint.
// OpenAI and Groq share it with different base URLs and models.
type OpenAIProvider struct {
	name   string
	model  string
	limit  int64
	client *openai.Client
}

// NewOpenAIProvider creates the OpenAI Whisper provider.
func NewOpenAIProvider(apiKey string, cfg OpenAIConfig, timeout time.Duration) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return newOpenAICompatible("openai", apiKey, cfg, timeout, openAIUploadLimit)
}

// NewGroqProvider creates the Groq Whisper provider.
func NewGroqProvider(apiKey string, cfg OpenAIConfig, timeout time.Duration) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3-turbo"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = groqBaseURL
	}
	return newOpenAICompatible("groq", apiKey, cfg, timeout, groqUploadLimit)
}

func newOpenAICompatible(name, apiKey string, cfg OpenAIConfig, timeout time.Duration, limit int64) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, types.NewError(types.KindAPIKeyMissing, "init", name+" API key not configured")
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	L_info("stt: provider initialized", "provider", name, "model", cfg.Model)
	return &OpenAIProvider{
		name:   name,
		model:  cfg.Model,
		limit:  limit,
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

// Name returns the provider name.
func (o *OpenAIProvider) Name() string {
	return o.name
}

// MaxUploadBytes returns the per-request upload cap.
func (o *OpenAIProvider) MaxUploadBytes() int64 {
	return o.limit
}

// Transcribe uploads one file and returns the verbose transcript with segments.
func (o *OpenAIProvider) Transcribe(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Transcript, error) {
	if progress == nil {
		progress = types.NoProgress
	}
	if err := cancel.Check(ctx, tok); err != nil {
		return types.Transcript{}, err
	}
	L_debug("stt: transcribing", "provider", o.name, "file", req.AudioPath)

	file, err := os.Open(req.AudioPath)
	if err != nil {
		return types.Transcript{}, openError(o.name, err)
	}
	defer file.Close()

	var size int64
	if st, err := file.Stat(); err == nil {
		size = st.Size()
	}
	if o.limit > 0 && size > o.limit {
		return types.Transcript{}, &types.Error{Kind: types.KindFileTooLarge, Op: "transcribe", Provider: o.name,
			Message: "file exceeds upload limit"}
	}

	callCtx, stop := cancel.Context(ctx, tok)
	defer stop()

	resp, err := o.client.CreateTranscription(callCtx, openai.AudioRequest{
		Model:    o.model,
		FilePath: filepath.Base(req.AudioPath),
		Reader:   &progressReader{r: file, total: size, report: progress},
		Language: req.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		if tok.IsCancelled() {
			return types.Transcript{}, types.ErrCancelled
		}
		return types.Transcript{}, mapOpenAIError(ctx, o.name, err)
	}

	out := types.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Provider: o.name,
	}
	for _, s := range resp.Segments {
		out.Segments = append(out.Segments, types.Segment{
			Start: seconds(s.Start),
			End:   seconds(s.End),
			Text:  strings.TrimSpace(s.Text),
		})
	}
	progress(1)
	L_debug("stt: transcription complete", "provider", o.name, "length", len(out.Text), "segments", len(out.Segments))
	return out, nil
}

// Close releases any resources (none for HTTP client).
func (o *OpenAIProvider) Close() error {
	return nil
}

// mapOpenAIError converts go-openai errors into the shared taxonomy,
// keeping the HTTP status so retry can classify it.
func mapOpenAIError(ctx context.Context, provider string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return types.ErrCancelled
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := types.HTTPError(provider, "transcribe", apiErr.HTTPStatusCode, apiErr.Message)
		e.Cause = err
		return e
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		e := types.HTTPError(provider, "transcribe", reqErr.HTTPStatusCode, "")
		e.Cause = err
		return e
	}
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}
	e := types.Wrap(types.KindNetwork, "transcribe", err)
	e.Provider = provider
	return e
}

func openError(provider string, err error) error {
	kind := types.KindMedia
	switch {
	case errors.Is(err, os.ErrNotExist):
		kind = types.KindNotFound
	case errors.Is(err, os.ErrPermission):
		kind = types.KindPermissionDenied
	}
	e := types.Wrap(kind, "transcribe", err)
	e.Provider = provider
	return e
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// progressReader reports upload progress as the multipart body is streamed.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	mu     sync.Mutex
	report types.ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.mu.Lock()
		p.read += int64(n)
		frac := float64(p.read) / float64(p.total)
		p.mu.Unlock()
		if frac > 1 {
			frac = 1
		}
		p.report(frac * uploadShare)
	}
	return n, err
}
