// Package summarize turns a transcript into a summary. Long transcripts are
// split into overlapping windows that are summarized briefly and merged by
// one combine call. Providers are tried in fallback order and a local
// extract is produced when every provider fails.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	"github.com/roelfdiedericks/voxnote/internal/chunking"
	"github.com/roelfdiedericks/voxnote/internal/llm"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/retry"
	"github.com/roelfdiedericks/voxnote/internal/telemetry"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// Providers is the registry view the fallback chain needs.
type Providers interface {
	Get(name string) (llm.Provider, bool)
	Names() []string
	Default() string
	CredentialID(name string) string
}

// KeyChecker reports whether a credential is configured.
type KeyChecker interface {
	HasKey(id string) bool
}

// Deps are the pipeline's collaborators.
type Deps struct {
	Providers Providers
	Keys      KeyChecker
	Telemetry telemetry.Reporter // nil = telemetry.Nop
	Policy    *retry.Policy      // nil = retry.DefaultPolicy
}

// Request is one summarization job.
type Request struct {
	Transcript string
	Length     types.Length
	Provider   string // requested provider, empty = app default

	// Checkpoint runs before every chunk and every attempt. It blocks while
	// the owning operation is paused and fails once it is cancelled.
	Checkpoint func(ctx context.Context) error
}

// Pipeline runs summarization requests.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New creates a pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Nop{}
	}
	if deps.Policy == nil {
		p := retry.DefaultPolicy()
		deps.Policy = &p
	}
	return &Pipeline{cfg: cfg, deps: deps}
}

// Run summarizes req.Transcript. It fails only on an empty transcript or
// cancellation; every other failure falls through to the next provider and
// finally to a local extract.
func (p *Pipeline) Run(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Summary, error) {
	if progress == nil {
		progress = types.NoProgress
	}
	if req.Length == "" {
		req.Length = types.LengthStandard
	}
	if req.Checkpoint == nil {
		req.Checkpoint = func(ctx context.Context) error { return cancel.Check(ctx, tok) }
	}
	if strings.TrimSpace(req.Transcript) == "" {
		return types.Summary{}, &types.Error{Kind: types.KindEmptyText, Op: "summarize", Message: "transcript is empty"}
	}
	if err := req.Checkpoint(ctx); err != nil {
		return types.Summary{}, err
	}

	report := monotonic(progress)
	inputLen := utf8.RuneCountInString(req.Transcript)

	for i, name := range p.chain(req.Provider) {
		provider, _ := p.deps.Providers.Get(name)
		start := time.Now()

		sum, err := p.attempt(ctx, req, provider, report, tok)

		rec := telemetry.Record{
			ProviderID:   name,
			Success:      err == nil,
			UsedFallback: telemetry.FallbackNone,
			ElapsedMs:    time.Since(start).Milliseconds(),
			InputLength:  inputLen,
		}
		if i > 0 {
			rec.UsedFallback = telemetry.FallbackProvider
		}
		if err == nil {
			rec.OutputLength = utf8.RuneCountInString(sum.Clean)
			p.deps.Telemetry.Report(rec)
			report(1)
			L_info("summarize: done", "provider", name, "fallback", rec.UsedFallback, "chunks", sum.Chunks, "chars", rec.OutputLength)
			return sum, nil
		}

		if types.IsCancelled(err) {
			return types.Summary{}, types.ErrCancelled
		}
		rec.ErrorKind = string(types.KindOf(err))
		p.deps.Telemetry.Report(rec)
		if types.IsKind(err, types.KindEmptyText) {
			return types.Summary{}, err
		}
		L_warn("summarize: provider failed, falling back", "provider", name, "error", err)
	}

	if err := req.Checkpoint(ctx); err != nil {
		return types.Summary{}, err
	}
	start := time.Now()
	sum := LocalExtract(req.Transcript, req.Length)
	p.deps.Telemetry.Report(telemetry.Record{
		ProviderID:   LocalProvider,
		Success:      true,
		UsedFallback: telemetry.FallbackLocal,
		ElapsedMs:    time.Since(start).Milliseconds(),
		InputLength:  inputLen,
		OutputLength: utf8.RuneCountInString(sum.Clean),
	})
	report(1)
	L_warn("summarize: every provider failed, returning local extract", "sentences", req.Length.Sentences())
	return sum, nil
}

// chain returns provider names in attempt order: the requested provider,
// the app default, then every other provider that has a key or needs
// none, in registry order. Unknown names are skipped.
func (p *Pipeline) chain(requested string) []string {
	reg := p.deps.Providers
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		if _, ok := reg.Get(name); !ok {
			L_warn("summarize: unknown provider skipped", "provider", name)
			return
		}
		out = append(out, name)
	}

	if requested == "" {
		requested = reg.Default()
	}
	add(requested)
	add(reg.Default())
	for _, name := range reg.Names() {
		if seen[name] {
			continue
		}
		prov, ok := reg.Get(name)
		if !ok {
			continue
		}
		if prov.RequiresAPIKey() && (p.deps.Keys == nil || !p.deps.Keys.HasKey(reg.CredentialID(name))) {
			continue
		}
		add(name)
	}
	return out
}

// attempt runs one provider over the whole transcript, chunking when it is
// too long, and renders the result to plain text capped at the length's
// character limit.
func (p *Pipeline) attempt(ctx context.Context, req Request, provider llm.Provider, progress types.ProgressFunc, tok cancel.Token) (types.Summary, error) {
	opts := p.cfg.textOptions()

	var sum types.Summary
	var err error
	if chunking.NeedsTextChunking(req.Transcript, opts) {
		sum, err = p.chunked(ctx, req, provider, opts, progress, tok)
	} else {
		sum, err = p.call(ctx, req, provider, llm.Request{
			Transcript: req.Transcript,
			Length:     req.Length,
			Prompt:     SystemPrompt(req.Length),
		}, progress, tok)
		sum.Chunks = 1
	}
	if err != nil {
		return types.Summary{}, err
	}

	sum.Clean = Truncate(PlainText(sum.Raw), req.Length.MaxChars())
	sum.Length = req.Length
	sum.Provider = provider.Name()
	return sum, nil
}

// chunked summarizes each window at brief length, then merges the partial
// summaries with exactly one combine call at the requested length.
func (p *Pipeline) chunked(ctx context.Context, req Request, provider llm.Provider, opts chunking.TextOptions, progress types.ProgressFunc, tok cancel.Token) (types.Summary, error) {
	chunks := chunking.SplitText(req.Transcript, opts)
	n := len(chunks)
	tracker := chunking.NewProgress(n+1, progress) // windows plus the combine call
	L_info("summarize: chunking transcript", "provider", provider.Name(), "chars", utf8.RuneCountInString(req.Transcript), "chunks", n)

	partials, err := chunking.Ordered(ctx, n, p.cfg.Parallelism, func(ctx context.Context, i int) (string, error) {
		if err := req.Checkpoint(ctx); err != nil {
			return "", err
		}
		part, err := p.call(ctx, req, provider, llm.Request{
			Transcript: chunks[i].Text,
			Length:     types.LengthBrief,
			Prompt:     ChunkPrompt(i, n),
		}, tracker.Chunk(i), tok)
		if err != nil {
			return "", types.InChunk(err, i, n)
		}
		tracker.Done(i)
		L_debug("summarize: chunk done", "index", i, "of", n, "chars", len(part.Raw))
		return part.Raw, nil
	})
	if err != nil {
		return types.Summary{}, err
	}

	if err := req.Checkpoint(ctx); err != nil {
		return types.Summary{}, err
	}
	combined, err := p.call(ctx, req, provider, llm.Request{
		Transcript: joinPartials(partials),
		Length:     req.Length,
		Prompt:     CombinePrompt(req.Length, n),
	}, tracker.Chunk(n), tok)
	if err != nil {
		return types.Summary{}, fmt.Errorf("combine: %w", err)
	}
	tracker.Done(n)
	combined.Chunks = n
	return combined, nil
}

// call runs one provider request through the retry loop. Retries repeat
// the identical request.
func (p *Pipeline) call(ctx context.Context, req Request, provider llm.Provider, lr llm.Request, progress types.ProgressFunc, tok cancel.Token) (types.Summary, error) {
	op := "summarize " + provider.Name()
	return retry.Do(ctx, tok, *p.deps.Policy, op, func(ctx context.Context, attempt int) (types.Summary, error) {
		if err := req.Checkpoint(ctx); err != nil {
			return types.Summary{}, err
		}
		return provider.Summarize(ctx, lr, progress, tok)
	})
}

// monotonic drops progress values below the highest one reported, so a
// fallback restarting at zero never moves the bar backwards.
func monotonic(report types.ProgressFunc) types.ProgressFunc {
	var mu sync.Mutex
	high := 0.0
	return func(f float64) {
		mu.Lock()
		if f <= high {
			mu.Unlock()
			return
		}
		high = f
		mu.Unlock()
		report(f)
	}
}
