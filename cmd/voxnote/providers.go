package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/stt"
)

// ProvidersCmd lists the transcription and summarization providers.
type ProvidersCmd struct {
	Validate bool `help:"Check every configured API key against its backend"`
}

func (c *ProvidersCmd) Run(g *Globals, ctx context.Context) error {
	cfg, _, err := g.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tDEFAULT\tKEY\tSTATUS")

	for _, name := range a.stt.Names() {
		p, _ := a.stt.Get(name)
		key := "yes"
		if stt.IsOnDevice(p) {
			key = "-"
		}
		fmt.Fprintf(tw, "stt\t%s\t%s\t%s\t%s\n", name, mark(name == a.stt.Default()), key, "ready")
	}

	failed := 0
	for _, name := range a.llm.Names() {
		p, _ := a.llm.Get(name)
		key := "-"
		status := "ready"
		if p.RequiresAPIKey() {
			k, ok := a.keys.APIKey(a.llm.CredentialID(name))
			switch {
			case !ok:
				key, status = "missing", "unavailable"
			case c.Validate:
				key = "yes"
				status = validateKey(ctx, func(ctx context.Context) (bool, error) { return p.ValidateAPIKey(ctx, k) })
			default:
				key = "yes"
			}
		}
		if status != "ready" && status != "valid" {
			failed++
		}
		fmt.Fprintf(tw, "llm\t%s\t%s\t%s\t%s\n", name, mark(name == a.llm.Default()), key, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if err := a.stt.Validate(cfg.STT.Provider); err != nil {
		return err
	}
	if c.Validate && failed > 0 {
		return fmt.Errorf("%d summarization provider(s) failed validation", failed)
	}
	return nil
}

func validateKey(ctx context.Context, check func(context.Context) (bool, error)) string {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	ok, err := check(ctx)
	switch {
	case err != nil:
		return "error: " + err.Error()
	case !ok:
		return "rejected"
	default:
		return "valid"
	}
}

func mark(b bool) string {
	if b {
		return "*"
	}
	return ""
}
