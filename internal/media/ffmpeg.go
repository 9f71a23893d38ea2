package media

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/chunking"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// Config holds audio tool configuration.
type Config struct {
	FFmpeg          string `json:"ffmpeg" toml:"ffmpeg" yaml:"ffmpeg"`                            // path or name on PATH
	FFprobe         string `json:"ffprobe" toml:"ffprobe" yaml:"ffprobe"`                         // path or name on PATH
	CompressBitrate string `json:"compressBitrate" toml:"compressBitrate" yaml:"compressBitrate"` // e.g. "32k"
	SegmentBitrate  string `json:"segmentBitrate" toml:"segmentBitrate" yaml:"segmentBitrate"`    // e.g. "48k"
}

// DefaultConfig returns the standard tool settings.
func DefaultConfig() Config {
	return Config{
		FFmpeg:          "ffmpeg",
		FFprobe:         "ffprobe",
		CompressBitrate: "32k",
		SegmentBitrate:  "48k",
	}
}

// Tools runs ffmpeg and ffprobe.
type Tools struct {
	cfg    Config
	runner Runner
}

// NewTools creates audio tools using the OS process runner.
func NewTools(cfg Config) *Tools {
	return NewToolsWithRunner(cfg, ExecRunner{})
}

// NewToolsWithRunner creates audio tools with an injected runner.
func NewToolsWithRunner(cfg Config, runner Runner) *Tools {
	d := DefaultConfig()
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = d.FFmpeg
	}
	if cfg.FFprobe == "" {
		cfg.FFprobe = d.FFprobe
	}
	if cfg.CompressBitrate == "" {
		cfg.CompressBitrate = d.CompressBitrate
	}
	if cfg.SegmentBitrate == "" {
		cfg.SegmentBitrate = d.SegmentBitrate
	}
	return &Tools{cfg: cfg, runner: runner}
}

// Available reports whether ffmpeg and ffprobe can be found.
func (t *Tools) Available() bool {
	if _, err := exec.LookPath(t.cfg.FFmpeg); err != nil {
		return false
	}
	_, err := exec.LookPath(t.cfg.FFprobe)
	return err == nil
}

// Duration returns the playback length of path.
func (t *Tools) Duration(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	res, err := t.runner.Run(ctx, t.cfg.FFprobe, args...)
	if err != nil {
		return 0, toolFailure(ctx, "probe", t.cfg.FFprobe, res, err)
	}

	raw := strings.TrimSpace(res.Stdout)
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, types.Wrap(types.KindMedia, "probe", fmt.Errorf("parse duration %q: %w", raw, err))
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Output containers for compressed files and exported chunks.
const (
	FormatM4A  = "m4a"
	FormatFLAC = "flac"
)

func codecArgs(format, bitrate string) []string {
	if format == FormatFLAC {
		return []string{"-c:a", "flac"}
	}
	return []string{"-c:a", "aac", "-b:a", bitrate}
}

func extFor(format string) string {
	if format == FormatFLAC {
		return ".flac"
	}
	return ".m4a"
}

// Compress re-encodes path to mono 16 kHz in outDir (low-bitrate AAC unless
// format is flac) and returns the new file path.
func (t *Tools) Compress(ctx context.Context, path, outDir, format string) (string, error) {
	out := filepath.Join(outDir, "compressed"+extFor(format))
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", path,
		"-vn", "-ac", "1", "-ar", "16000",
	}
	args = append(args, codecArgs(format, t.cfg.CompressBitrate)...)
	args = append(args, out)
	L_debug("media: compressing", "input", path, "format", format, "bitrate", t.cfg.CompressBitrate)
	res, err := t.runner.Run(ctx, t.cfg.FFmpeg, args...)
	if err != nil {
		return "", toolFailure(ctx, "compress", t.cfg.FFmpeg, res, err)
	}
	return out, nil
}

// Export writes window w of path to its own file in outDir.
func (t *Tools) Export(ctx context.Context, path string, w chunking.AudioWindow, outDir, format string) (string, error) {
	out := filepath.Join(outDir, fmt.Sprintf("chunk-%03d%s", w.Index, extFor(format)))
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-ss", formatSeconds(w.Start),
		"-t", formatSeconds(w.Duration),
		"-i", path,
		"-vn", "-ac", "1", "-ar", "16000",
	}
	args = append(args, codecArgs(format, t.cfg.SegmentBitrate)...)
	args = append(args, out)
	L_debug("media: exporting window", "index", w.Index, "start", w.Start, "duration", w.Duration)
	res, err := t.runner.Run(ctx, t.cfg.FFmpeg, args...)
	if err != nil {
		return "", toolFailure(ctx, "export", t.cfg.FFmpeg, res, err)
	}
	return out, nil
}

// DecodePCM converts path to raw 16 kHz mono signed 16-bit PCM at out.
func (t *Tools) DecodePCM(ctx context.Context, path, out string) error {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", path,
		"-ar", strconv.Itoa(TargetSampleRate),
		"-ac", "1",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		out,
	}
	res, err := t.runner.Run(ctx, t.cfg.FFmpeg, args...)
	if err != nil {
		return toolFailure(ctx, "decode", t.cfg.FFmpeg, res, err)
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
