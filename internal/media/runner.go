// Package media wraps the local audio tooling the transcription pipeline
// needs: probing, compression, segment export and PCM decoding.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/roelfdiedericks/voxnote/internal/types"
)

// CommandResult is the captured output of one external command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 - args are built internally
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// ToolError is a failed ffmpeg/ffprobe invocation.
type ToolError struct {
	Stage    string // "probe", "compress", "export", "decode"
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	tail := strings.TrimSpace(e.Stderr)
	if idx := strings.LastIndex(tail, "\n"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return fmt.Sprintf("%s: %s failed (exit=%d): %s", e.Stage, e.Command, e.ExitCode, tail)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// toolFailure converts a command failure into the shared taxonomy. A
// context cancellation is reported as cancelled, never as a media error.
func toolFailure(ctx context.Context, stage, command string, res CommandResult, err error) error {
	if ctx.Err() != nil {
		return types.ErrCancelled
	}
	return types.Wrap(types.KindMedia, stage, &ToolError{
		Stage:    stage,
		Command:  command,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
		Err:      err,
	})
}
