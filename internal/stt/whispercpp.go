package stt

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/media"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// WhisperCppProvider implements on-device STT using whisper.cpp.
type WhisperCppProvider struct {
	model  whisper.Model
	tools  *media.Tools
	config WhisperCppConfig

	mu sync.Mutex // one inference at a time; the model saturates the CPU
}

// ModelPath returns the model file for cfg, or "" when not configured.
func (cfg WhisperCppConfig) ModelPath() string {
	if cfg.ModelsDir == "" || cfg.Model == "" {
		return ""
	}
	return filepath.Join(cfg.ModelsDir, cfg.Model)
}

// NewWhisperCppProvider loads the configured model.
func NewWhisperCppProvider(cfg WhisperCppConfig, tools *media.Tools) (*WhisperCppProvider, error) {
	modelPath := cfg.ModelPath()
	if modelPath == "" {
		return nil, types.NewError(types.KindNotFound, "init", "whisper.cpp model not configured")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, types.Wrap(types.KindNotFound, "init", fmt.Errorf("whisper model: %w", err))
	}

	L_info("stt: loading whisper.cpp model", "path", modelPath)
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, types.Wrap(types.KindMedia, "init", fmt.Errorf("load whisper model: %w", err))
	}
	L_info("stt: whisper.cpp model loaded", "multilingual", model.IsMultilingual())

	return &WhisperCppProvider{model: model, tools: tools, config: cfg}, nil
}

// Name returns the provider name.
func (w *WhisperCppProvider) Name() string {
	return "whispercpp"
}

// MaxUploadBytes is unlimited for local inference.
func (w *WhisperCppProvider) MaxUploadBytes() int64 {
	return 0
}

// OnDevice reports that inference runs locally.
func (w *WhisperCppProvider) OnDevice() bool {
	return true
}

// Transcribe decodes the file to 16 kHz PCM and runs inference. The token is
// polled from the encoder-begin callback, which aborts before the next
// encoder pass.
func (w *WhisperCppProvider) Transcribe(ctx context.Context, req Request, progress types.ProgressFunc, tok cancel.Token) (types.Transcript, error) {
	if progress == nil {
		progress = types.NoProgress
	}
	if err := cancel.Check(ctx, tok); err != nil {
		return types.Transcript{}, err
	}
	L_debug("stt: whisper.cpp transcribing", "file", req.AudioPath)

	samples, err := w.tools.ToFloat32(ctx, req.AudioPath)
	if err != nil {
		return types.Transcript{}, err
	}
	L_debug("stt: audio converted", "samples", len(samples), "duration_sec", float64(len(samples))/float64(media.TargetSampleRate))

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := cancel.Check(ctx, tok); err != nil {
		return types.Transcript{}, err
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return types.Transcript{}, types.Wrap(types.KindMedia, "transcribe", fmt.Errorf("create whisper context: %w", err))
	}

	lang := req.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		L_debug("stt: language not supported by model", "language", lang, "error", err)
	}
	if w.config.Threads > 0 {
		wctx.SetThreads(w.config.Threads)
	}

	keepGoing := func() bool {
		return ctx.Err() == nil && !tok.IsCancelled()
	}
	onProgress := func(pct int) {
		progress(float64(pct) / 100)
	}
	if err := wctx.Process(samples, keepGoing, nil, onProgress); err != nil {
		if !keepGoing() {
			return types.Transcript{}, types.ErrCancelled
		}
		return types.Transcript{}, types.Wrap(types.KindMedia, "transcribe", fmt.Errorf("whisper process: %w", err))
	}
	if !keepGoing() {
		return types.Transcript{}, types.ErrCancelled
	}

	out := types.Transcript{Provider: w.Name()}
	var text strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.Transcript{}, types.Wrap(types.KindInvalidResponse, "transcribe", fmt.Errorf("get segment: %w", err))
		}
		text.WriteString(segment.Text)
		out.Segments = append(out.Segments, types.Segment{
			Start: segment.Start,
			End:   segment.End,
			Text:  strings.TrimSpace(segment.Text),
		})
	}
	out.Text = strings.TrimSpace(text.String())
	progress(1)

	L_debug("stt: whisper.cpp transcription complete", "length", len(out.Text))
	return out, nil
}

// Close releases the whisper model.
func (w *WhisperCppProvider) Close() error {
	L_debug("stt: closing whisper.cpp model")
	return w.model.Close()
}
