package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/voxnote/internal/config"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/paths"
)

var version = "0.1.0"

// Globals are flags shared by every command.
type Globals struct {
	ConfigPath string `name:"config" short:"c" help:"Config file (default: ./voxnote.{json,toml,yaml} then ~/.voxnote/)" type:"path"`
	LogLevel   string `name:"log-level" help:"trace, debug, info, warn or error (overrides config)"`
	JSONLogs   bool   `name:"json-logs" help:"Emit JSON log lines"`
}

// loadConfig loads the selected or discovered config and applies the log
// level from it unless one was given on the command line.
func (g *Globals) loadConfig() (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if g.ConfigPath != "" {
		path = g.ConfigPath
		cfg, err = config.LoadFile(path)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, path, err
	}
	if g.LogLevel == "" {
		SetLevel(ParseLevel(cfg.LogLevel))
	}
	return cfg, path, nil
}

// configFile returns the config file commands operate on: the --config
// flag, else the discovered file, else the default location.
func (g *Globals) configFile() (string, error) {
	if g.ConfigPath != "" {
		return g.ConfigPath, nil
	}
	path, err := paths.ConfigPath()
	if err != nil || path != "" {
		return path, err
	}
	return paths.DefaultConfigPath()
}

// CLI is the voxnote command tree.
type CLI struct {
	Globals

	Serve      ServeCmd      `cmd:"" help:"Run the API server and process recordings"`
	Transcribe TranscribeCmd `cmd:"" help:"Transcribe an audio file"`
	Summarize  SummarizeCmd  `cmd:"" help:"Summarize a transcript file"`
	Status     StatusCmd     `cmd:"" help:"Show operations on a running server"`
	Providers  ProvidersCmd  `cmd:"" help:"List configured providers"`
	Cfg        ConfigCmd     `cmd:"" name:"config" help:"Manage the config file"`
	Version    VersionCmd    `cmd:"" help:"Print the version"`
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (VersionCmd) Run() error {
	fmt.Printf("voxnote %s\n", version)
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("voxnote"),
		kong.Description("Transcribe and summarize recordings."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	level := LevelInfo
	if cli.LogLevel != "" {
		level = ParseLevel(cli.LogLevel)
	}
	Init(&Options{
		Level:      level,
		TimeFormat: "15:04:05",
		JSON:       cli.JSONLogs,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	err := kctx.Run(&cli.Globals)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxnote: %v\n", err)
		os.Exit(1)
	}
}
