// Package transcribe turns one recording into a transcript: it validates the
// file, compresses it when a provider's upload limit demands, splits long
// audio into windows, retries each window and stitches the results.
package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	"github.com/roelfdiedericks/voxnote/internal/chunking"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/media"
	"github.com/roelfdiedericks/voxnote/internal/retry"
	"github.com/roelfdiedericks/voxnote/internal/speakers"
	"github.com/roelfdiedericks/voxnote/internal/stt"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// Selector resolves the provider for a request.
type Selector interface {
	Select(name string, onDevicePreferred bool) (stt.Provider, error)
}

// AudioTools is the subset of media.Tools the pipeline needs.
type AudioTools interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
	Compress(ctx context.Context, path, outDir, format string) (string, error)
	Export(ctx context.Context, path string, w chunking.AudioWindow, outDir, format string) (string, error)
}

// Deps are the pipeline's collaborators.
type Deps struct {
	Providers Selector
	Tools     AudioTools
	Speakers  speakers.Heuristic                    // nil = speakers.None
	Policy    *retry.Policy                         // nil = retry.DefaultPolicy
	Inspect   func(path string) (media.Info, error) // nil = media.Inspect
}

// Request is one transcription job.
type Request struct {
	AudioPath         string
	Language          string
	Provider          string // empty = registry default
	OnDevicePreferred bool

	// Checkpoint runs before every chunk and every attempt. It blocks while
	// the owning operation is paused and fails once it is cancelled.
	Checkpoint func(ctx context.Context) error
}

// Pipeline runs transcription requests.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New creates a pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if deps.Speakers == nil {
		deps.Speakers = speakers.None{}
	}
	if deps.Policy == nil {
		p := retry.DefaultPolicy()
		deps.Policy = &p
	}
	if deps.Inspect == nil {
		deps.Inspect = media.Inspect
	}
	return &Pipeline{cfg: cfg, deps: deps}
}

// plan is what the pipeline decided to do with one file.
type plan struct {
	provider stt.Provider
	source   string // file to upload or cut windows from
	windows  []chunking.AudioWindow
	format   string
}

// Run transcribes req.AudioPath. Progress is reported in [0,1] and never
// regresses. The first chunk that fails irrecoverably aborts the whole run
// with that chunk's error.
func (p *Pipeline) Run(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Transcript, error) {
	if progress == nil {
		progress = types.NoProgress
	}
	if req.Checkpoint == nil {
		req.Checkpoint = func(ctx context.Context) error { return cancel.Check(ctx, tok) }
	}
	start := time.Now()

	if err := req.Checkpoint(ctx); err != nil {
		return types.Transcript{}, err
	}

	provider, err := p.deps.Providers.Select(req.Provider, req.OnDevicePreferred)
	if err != nil {
		return types.Transcript{}, err
	}

	info, err := p.deps.Inspect(req.AudioPath)
	if err != nil {
		return types.Transcript{}, err
	}

	scratch, err := media.NewScratch(p.cfg.ScratchDir, "transcribe")
	if err != nil {
		return types.Transcript{}, err
	}
	defer func() {
		if err := scratch.Close(); err != nil {
			L_warn("transcribe: failed to remove scratch dir", "error", err)
		}
	}()

	pl, err := p.plan(ctx, provider, info, scratch, tok)
	if err != nil {
		return types.Transcript{}, err
	}

	var out types.Transcript
	if len(pl.windows) == 0 {
		out, err = p.single(ctx, req, pl, progress, tok)
	} else {
		out, err = p.chunked(ctx, req, pl, scratch, progress, tok)
	}
	if err != nil {
		return types.Transcript{}, err
	}

	out.Segments = p.deps.Speakers.Assign(out.Segments)
	out.Provider = provider.Name()
	progress(1)
	L_elapsed(start, "transcribe: done", "provider", out.Provider, "chunks", out.Chunks, "length", len(out.Text))
	return out, nil
}

// plan probes the file and decides between a single upload and windows.
// Oversized files are compressed first; windows are used when the duration
// exceeds the threshold or compression did not bring the file under the
// provider's limit.
func (p *Pipeline) plan(ctx context.Context, provider stt.Provider, info media.Info, scratch *media.Scratch, tok cancel.Token) (plan, error) {
	pl := plan{provider: provider, source: info.Path, format: media.FormatM4A}
	opts := p.cfg.audioOptions()
	maxBytes := provider.MaxUploadBytes()

	if c, ok := provider.(stt.Constrained); ok {
		if d := c.MaxDuration(); d > 0 {
			if opts.Window <= 0 || d < opts.Window {
				opts.Window = d
			}
			if opts.Threshold <= 0 || d < opts.Threshold {
				opts.Threshold = d
			}
		}
		if f := c.ChunkFormat(); f != "" {
			pl.format = f
		}
	}

	duration, err := p.deps.Tools.Duration(ctx, info.Path)
	if err != nil {
		if cerr := cancel.Check(ctx, tok); cerr != nil {
			return plan{}, cerr
		}
		if maxBytes > 0 && info.Size > maxBytes {
			return plan{}, err
		}
		L_warn("transcribe: could not probe duration, sending whole file", "file", info.Path, "error", err)
		return pl, nil
	}

	size := info.Size
	if maxBytes > 0 && size > maxBytes {
		if err := cancel.Check(ctx, tok); err != nil {
			return plan{}, err
		}
		L_info("transcribe: file over upload limit, compressing", "size", size, "limit", maxBytes)
		compressed, err := p.deps.Tools.Compress(ctx, info.Path, scratch.Dir(), pl.format)
		switch {
		case types.IsCancelled(err):
			return plan{}, err
		case err != nil:
			L_warn("transcribe: compression failed, chunking original", "error", err)
		default:
			if st, serr := os.Stat(compressed); serr == nil {
				pl.source = compressed
				size = st.Size()
				L_debug("transcribe: compressed", "size", size)
			}
		}
	}

	if !chunking.NeedsAudioChunking(duration, size, maxBytes, opts) {
		return pl, nil
	}
	if maxBytes > 0 && size > maxBytes {
		opts.Window = chunking.WindowForSize(duration, size, maxBytes, opts)
	}
	pl.windows = chunking.PlanAudio(duration, opts)
	L_info("transcribe: chunking audio", "duration", duration, "window", opts.Window, "chunks", len(pl.windows))
	return pl, nil
}

func (p *Pipeline) single(ctx context.Context, req Request, pl plan, progress types.ProgressFunc, tok cancel.Token) (types.Transcript, error) {
	out, err := p.call(ctx, req, pl.provider, pl.source, progress, tok)
	if err != nil {
		return types.Transcript{}, err
	}
	out.Chunks = 1
	return out, nil
}

func (p *Pipeline) chunked(ctx context.Context, req Request, pl plan, scratch *media.Scratch, progress types.ProgressFunc, tok cancel.Token) (types.Transcript, error) {
	n := len(pl.windows)
	tracker := chunking.NewProgress(n, progress)

	parts, err := chunking.Ordered(ctx, n, p.cfg.Parallelism, func(ctx context.Context, i int) (types.Transcript, error) {
		w := pl.windows[i]
		if err := req.Checkpoint(ctx); err != nil {
			return types.Transcript{}, err
		}

		file, err := p.deps.Tools.Export(ctx, pl.source, w, scratch.Dir(), pl.format)
		if err != nil {
			return types.Transcript{}, types.InChunk(err, i, n)
		}
		defer scratch.Remove(file)

		L_debug("transcribe: chunk starting", "index", i, "of", n, "start", w.Start)
		part, err := p.call(ctx, req, pl.provider, file, tracker.Chunk(i), tok)
		if err != nil {
			return types.Transcript{}, types.InChunk(err, i, n)
		}
		tracker.Done(i)
		return offset(part, w.Start), nil
	})
	if err != nil {
		return types.Transcript{}, err
	}

	out := types.Transcript{Chunks: n}
	texts := make([]string, 0, n)
	for _, part := range parts {
		if t := strings.TrimSpace(part.Text); t != "" {
			texts = append(texts, t)
		}
		out.Segments = append(out.Segments, part.Segments...)
	}
	out.Text = strings.Join(texts, "\n\n")
	return out, nil
}

// call uploads one file through the retry loop. The same request is
// repeated on retry; provider and file never change.
func (p *Pipeline) call(ctx context.Context, req Request, provider stt.Provider, file string, progress types.ProgressFunc, tok cancel.Token) (types.Transcript, error) {
	op := fmt.Sprintf("transcribe %s", provider.Name())
	return retry.Do(ctx, tok, *p.deps.Policy, op, func(ctx context.Context, attempt int) (types.Transcript, error) {
		if err := req.Checkpoint(ctx); err != nil {
			return types.Transcript{}, err
		}
		return provider.Transcribe(ctx, stt.Request{
			AudioPath:         file,
			Language:          req.Language,
			OnDevicePreferred: req.OnDevicePreferred,
		}, progress, tok)
	})
}

// offset shifts segment times from window-relative to recording-relative.
func offset(t types.Transcript, by time.Duration) types.Transcript {
	segs := make([]types.Segment, len(t.Segments))
	for i, s := range t.Segments {
		s.Start += by
		s.End += by
		segs[i] = s
	}
	t.Segments = segs
	return t
}
