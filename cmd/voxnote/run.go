package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	"github.com/roelfdiedericks/voxnote/internal/config"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/paths"
	"github.com/roelfdiedericks/voxnote/internal/summarize"
	"github.com/roelfdiedericks/voxnote/internal/transcribe"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// TranscribeCmd transcribes one file in the foreground.
type TranscribeCmd struct {
	File      string `arg:"" type:"existingfile" help:"Audio file"`
	Language  string `short:"l" help:"Language code, empty = detect"`
	Provider  string `short:"p" help:"Transcription provider (default from config)"`
	OnDevice  bool   `name:"on-device" help:"Prefer the on-device whisper.cpp provider"`
	Summarize bool   `short:"s" help:"Summarize the transcript afterwards"`
	Length    string `help:"Summary length: brief, standard or detailed" default:"standard"`
	JSON      bool   `help:"Print the result as JSON"`
}

func (c *TranscribeCmd) Run(g *Globals, ctx context.Context) error {
	cfg, _, err := g.loadConfig()
	if err != nil {
		return err
	}
	length, err := types.ParseLength(c.Length)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()
	if c.Provider == "" && !c.OnDevice {
		if err := a.requireTranscription(); err != nil {
			return err
		}
	}

	lang := c.Language
	if lang == "" {
		lang = cfg.STT.Language
	}
	tok := cancel.FromContext(ctx)
	tr, err := a.transcribe.Run(ctx, transcribe.Request{
		AudioPath:         c.File,
		Language:          lang,
		Provider:          c.Provider,
		OnDevicePreferred: c.OnDevice,
	}, progressLogger("transcribe"), tok)
	if err != nil {
		return err
	}

	out := struct {
		Transcript types.Transcript `json:"transcript"`
		Summary    *types.Summary   `json:"summary,omitempty"`
	}{Transcript: tr}

	if c.Summarize {
		sum, err := a.summarize.Run(ctx, summarize.Request{Transcript: tr.Text, Length: length}, progressLogger("summarize"), tok)
		if err != nil {
			return err
		}
		out.Summary = &sum
	}

	if c.JSON {
		return printJSON(os.Stdout, out)
	}
	fmt.Println(tr.Text)
	if out.Summary != nil {
		fmt.Println()
		fmt.Println(out.Summary.Clean)
	}
	return nil
}

// SummarizeCmd summarizes a transcript file, or stdin when the file is "-".
type SummarizeCmd struct {
	File     string `arg:"" help:"Transcript text file, - for stdin"`
	Length   string `help:"Summary length: brief, standard or detailed" default:"standard"`
	Provider string `short:"p" help:"Summarization provider (default from config)"`
	Raw      bool   `help:"Print the model output as returned instead of plain text"`
	JSON     bool   `help:"Print the result as JSON"`
}

func (c *SummarizeCmd) Run(g *Globals, ctx context.Context) error {
	cfg, _, err := g.loadConfig()
	if err != nil {
		return err
	}
	length, err := types.ParseLength(c.Length)
	if err != nil {
		return err
	}
	text, err := readInput(c.File)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := a.summarize.Run(ctx, summarize.Request{
		Transcript: text,
		Length:     length,
		Provider:   c.Provider,
	}, progressLogger("summarize"), cancel.FromContext(ctx))
	if err != nil {
		return err
	}

	switch {
	case c.JSON:
		return printJSON(os.Stdout, sum)
	case c.Raw && sum.Raw != "":
		fmt.Println(sum.Raw)
	default:
		fmt.Println(sum.Clean)
	}
	return nil
}

// ConfigCmd manages the config file.
type ConfigCmd struct {
	Init    ConfigInitCmd    `cmd:"" help:"Write a default config file"`
	Show    ConfigShowCmd    `cmd:"" help:"Print the effective config"`
	Backups ConfigBackupsCmd `cmd:"" help:"List saved versions of the config file"`
	Restore ConfigRestoreCmd `cmd:"" help:"Replace the config file with a saved version"`
}

// ConfigInitCmd writes the defaults; the extension picks the format.
type ConfigInitCmd struct {
	Path  string `arg:"" optional:"" help:"Target file (default ~/.voxnote/voxnote.json)"`
	Force bool   `help:"Overwrite an existing file (a backup is kept)"`
}

func (c *ConfigInitCmd) Run() error {
	path := c.Path
	if path == "" {
		p, err := paths.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s exists (use --force to overwrite)", path)
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

// ConfigShowCmd prints the merged configuration.
type ConfigShowCmd struct {
	Format string `enum:"json,toml,yaml" default:"json" help:"Output format"`
	JQ     string `name:"jq" help:"Filter the JSON output with a jq expression"`
}

func (c *ConfigShowCmd) Run(g *Globals) error {
	cfg, path, err := g.loadConfig()
	if err != nil {
		return err
	}
	if path != "" {
		L_debug("config: showing", "path", path)
	}
	if c.JQ != "" {
		raw, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		out, err := executeJQ(c.JQ, raw)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	data, err := config.Encode(cfg, config.Format(c.Format))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

// ConfigBackupsCmd lists the backups kept beside the config file.
type ConfigBackupsCmd struct {
	JSON bool `help:"Print JSON"`
}

func (c *ConfigBackupsCmd) Run(g *Globals) error {
	path, err := g.configFile()
	if err != nil {
		return err
	}
	backups := config.ListBackups(path)
	if c.JSON {
		if backups == nil {
			backups = []config.Backup{}
		}
		return printJSON(os.Stdout, backups)
	}
	fmt.Print(renderBackups(path, backups))
	return nil
}

func renderBackups(path string, backups []config.Backup) string {
	if len(backups) == 0 {
		return fmt.Sprintf("no backups of %s\n", path)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "backups of %s (newest first)\n", path)
	for _, bk := range backups {
		fmt.Fprintf(&b, "  %d  %s  %6d bytes  %s\n", bk.Index, bk.ModTime.Format("2006-01-02 15:04:05"), bk.Size, filepath.Base(bk.Path))
	}
	return b.String()
}

// ConfigRestoreCmd restores a backup; the current file becomes backup 0.
type ConfigRestoreCmd struct {
	Index int `arg:"" optional:"" default:"0" help:"Backup index from 'config backups' (0 = newest)"`
}

func (c *ConfigRestoreCmd) Run(g *Globals) error {
	path, err := g.configFile()
	if err != nil {
		return err
	}
	cfg, err := config.RestoreBackup(path, c.Index)
	if err != nil {
		return err
	}
	fmt.Printf("restored backup %d to %s (log level %s, %d LLM providers)\n", c.Index, path, cfg.LogLevel, len(cfg.LLM.Providers))
	return nil
}

func readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// progressLogger logs whole-percent steps of ten.
func progressLogger(stage string) types.ProgressFunc {
	var last atomic.Int64
	last.Store(-1)
	return func(p float64) {
		step := int64(p * 10)
		if prev := last.Load(); step > prev && last.CompareAndSwap(prev, step) {
			L_info("%s: %d%%", stage, step*10)
		}
	}
}
