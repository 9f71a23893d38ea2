package main

import (
	"context"
	"fmt"

	"github.com/roelfdiedericks/voxnote/internal/config"
	"github.com/roelfdiedericks/voxnote/internal/credentials"
	"github.com/roelfdiedericks/voxnote/internal/llm"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/media"
	"github.com/roelfdiedericks/voxnote/internal/metrics"
	"github.com/roelfdiedericks/voxnote/internal/speakers"
	"github.com/roelfdiedericks/voxnote/internal/stt"
	"github.com/roelfdiedericks/voxnote/internal/summarize"
	"github.com/roelfdiedericks/voxnote/internal/telemetry"
	"github.com/roelfdiedericks/voxnote/internal/transcribe"
)

// app holds the components every processing command shares.
type app struct {
	cfg        *config.Config
	keys       *credentials.Store
	tools      *media.Tools
	stt        *stt.Registry
	llm        *llm.Registry
	telemetry  *telemetry.Async
	transcribe *transcribe.Pipeline
	summarize  *summarize.Pipeline
}

// newApp builds credentials, provider registries, telemetry and both
// pipelines. With persistMetrics the metrics database is opened as well.
func newApp(ctx context.Context, cfg *config.Config, persistMetrics bool) (*app, error) {
	keys, err := credentials.New(cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}

	if persistMetrics && cfg.Telemetry.MetricsDB != "" {
		if err := metrics.GetInstance().Open(cfg.Telemetry.MetricsDB); err != nil {
			L_warn("metrics: persistence disabled", "error", err)
		}
	}

	tools := media.NewTools(cfg.Media)
	if !tools.Available() {
		L_warn("media: ffmpeg/ffprobe not found, long recordings cannot be chunked")
	}

	sinks := []telemetry.Sink{telemetry.MetricsSink{}}
	if cfg.Telemetry.Redis.Addr != "" {
		rs, err := telemetry.NewRedisSink(ctx, cfg.Telemetry.Redis)
		if err != nil {
			L_warn("telemetry: redis sink disabled", "addr", cfg.Telemetry.Redis.Addr, "error", err)
		} else {
			sinks = append(sinks, rs)
		}
	}
	reporter := telemetry.NewAsync(cfg.Telemetry.QueueSize, sinks...)

	sttReg := stt.Build(cfg.STT, keys, tools)
	llmReg, err := llm.Build(cfg.LLM, keys)
	if err != nil {
		sttReg.Close()
		reporter.Close()
		return nil, err
	}

	rt := &app{
		cfg:       cfg,
		keys:      keys,
		tools:     tools,
		stt:       sttReg,
		llm:       llmReg,
		telemetry: reporter,
	}
	rt.transcribe = transcribe.New(cfg.Transcribe, transcribe.Deps{
		Providers: sttReg,
		Tools:     tools,
		Speakers:  speakers.New(cfg.Speakers),
	})
	rt.summarize = summarize.New(cfg.Summarize, summarize.Deps{
		Providers: llmReg,
		Keys:      keys,
		Telemetry: reporter,
	})
	return rt, nil
}

// requireTranscription fails when the configured default STT provider did
// not register.
func (rt *app) requireTranscription() error {
	if len(rt.stt.Names()) == 0 {
		return fmt.Errorf("no transcription provider configured (set an API key or a whisper.cpp model)")
	}
	return rt.stt.Validate(rt.cfg.STT.Provider)
}

// Close releases providers and flushes telemetry and metrics.
func (rt *app) Close() {
	rt.stt.Close()
	if err := rt.telemetry.Close(); err != nil {
		L_debug("telemetry: close failed", "error", err)
	}
	if n := rt.telemetry.Dropped(); n > 0 {
		L_warn("telemetry: records dropped", "count", n)
	}
	if err := metrics.GetInstance().Close(); err != nil {
		L_warn("metrics: close failed", "error", err)
	}
}
