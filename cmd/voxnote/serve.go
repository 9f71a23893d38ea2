package main

import (
	"context"
	"fmt"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/background"
	"github.com/roelfdiedericks/voxnote/internal/bus"
	apihttp "github.com/roelfdiedericks/voxnote/internal/http"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/media"
	"github.com/roelfdiedericks/voxnote/internal/operations"
	"github.com/roelfdiedericks/voxnote/internal/recordings"
)

// ServeCmd runs the API server, the inbox watcher and the operations
// registry until interrupted.
type ServeCmd struct {
	Listen  string `help:"Listen address (overrides config)"`
	NoWatch bool   `name:"no-watch" help:"Do not watch the inbox directory"`
}

func (c *ServeCmd) Run(g *Globals, ctx context.Context) error {
	cfg, path, err := g.loadConfig()
	if err != nil {
		return err
	}
	L_info("voxnote %s starting", version)
	if path != "" {
		L_debug("serve: using config", "path", path)
	}

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireTranscription(); err != nil {
		return err
	}

	if n := media.CleanStale(cfg.Transcribe.ScratchDir, time.Hour); n > 0 {
		L_debug("serve: cleaned scratch", "removed", n)
	}

	store, err := recordings.OpenSQLite(cfg.Recordings.Database)
	if err != nil {
		return fmt.Errorf("recordings: %w", err)
	}
	defer store.Close()

	tracker := background.NewTracker(func(ids []string) {
		L_warn("serve: operations stalled without progress", "ids", ids)
	})

	opsCfg := cfg.Operations
	opsCfg.AutoSummarize = opsCfg.AutoSummarize || cfg.Recordings.AutoSummarize
	if opsCfg.Language == "" {
		opsCfg.Language = cfg.STT.Language
	}
	ops := operations.New(opsCfg, operations.Deps{
		Transcriber: a.transcribe,
		Summarizer:  a.summarize,
		Recordings:  store,
		Background:  tracker,
		Bus:         bus.Default(),
	})
	defer ops.Close()
	if err := ops.StartSweeper(); err != nil {
		return err
	}

	process := func(rec recordings.Recording) {
		switch {
		case rec.NeedsTranscript():
			lang := rec.Language
			if lang == "" {
				lang = cfg.Recordings.Language
			}
			opts := operations.TranscriptionOptions{Language: lang, OnDevicePreferred: cfg.Recordings.OnDevice}
			if _, err := ops.StartTranscription(rec.ID, rec.Path, opts); err != nil {
				L_warn("serve: transcription not started", "recording", rec.ID, "error", err)
			}
		case rec.NeedsSummary() && opsCfg.AutoSummarize:
			if _, err := ops.StartSummarization(rec.ID, "", "", ""); err != nil {
				L_warn("serve: summarization not started", "recording", rec.ID, "error", err)
			}
		}
	}

	pending, err := store.Pending(ctx)
	if err != nil {
		L_warn("serve: could not list pending recordings", "error", err)
	}
	for _, rec := range pending {
		process(rec)
	}
	if len(pending) > 0 {
		L_info("serve: resumed pending recordings", "count", len(pending))
	}

	if cfg.Recordings.WatchInbox && !c.NoWatch {
		w, err := recordings.NewWatcher(cfg.Recordings.Inbox, store, cfg.Recordings, process)
		if err != nil {
			return fmt.Errorf("inbox watcher: %w", err)
		}
		if n := w.Scan(ctx); n > 0 {
			L_info("serve: inbox scan added recordings", "count", n)
		}
		w.Start()
		defer w.Stop()
	}

	if !cfg.HTTP.Disabled {
		listen := cfg.HTTP.Listen
		if c.Listen != "" {
			listen = c.Listen
		}
		srv, err := apihttp.NewServer(apihttp.ServerConfig{Listen: listen}, apihttp.Deps{
			Operations: ops,
			Recordings: store,
			Bus:        bus.Default(),
		})
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()
	}

	L_info("voxnote ready", "stt", a.stt.Names(), "llm", a.llm.Names())
	<-ctx.Done()

	SetShuttingDown()
	L_info("voxnote shutting down", "active", len(ops.Active()))
	return nil
}
