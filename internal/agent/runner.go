package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// defaultSystemPrompt is appended to every invocation so the agent knows it
// may drive Discord through the action API instead of replying inline.
const defaultSystemPrompt = "Use the discord skill to reply to the user. " +
	"Passwordless sudo is available if you need it, and you may install packages as required.\n"

// Runner shells out to the claude CLI in non-interactive JSON mode. Exactly
// one subprocess per Run call; there are no retries at this layer.
type Runner struct {
	Bin          string
	SystemPrompt string
	// ForceSkipPermissions mirrors CLAUDE_SKIP_PERMISSIONS: when set, every
	// run bypasses tool-permission prompting regardless of the request.
	ForceSkipPermissions bool
	Logger               *slog.Logger
}

func NewRunner(bin string, forceSkip bool, logger *slog.Logger) Runner {
	if strings.TrimSpace(bin) == "" {
		bin = "claude"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Runner{Bin: bin, SystemPrompt: defaultSystemPrompt, ForceSkipPermissions: forceSkip, Logger: logger}
}

// buildArgs assembles the fixed-flag command line. The tool allow-list and
// the permission bypass are mutually exclusive: the bypass wins and the
// allow-list flag is omitted entirely.
func (r Runner) buildArgs(req RunRequest) []string {
	args := []string{"--print", "--append-system-prompt", r.SystemPrompt, "--output-format", "json"}

	if r.skipPermissions(req) {
		args = append(args, "--dangerously-skip-permissions")
	} else {
		tools := req.AllowedTools
		if len(tools) == 0 {
			tools = DefaultAllowedTools
		}
		args = append(args, "--allowedTools", strings.Join(tools, ","))
	}

	return append(args, req.Prompt)
}

func (r Runner) skipPermissions(req RunRequest) bool {
	return r.ForceSkipPermissions || req.SkipPermissions
}

// Run executes a single claude subprocess with a hard timeout.
func (r Runner) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	timeoutSec := req.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = DefaultTimeoutSec
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Bin, r.buildArgs(req)...)
	if strings.TrimSpace(req.Cwd) != "" {
		cmd.Dir = req.Cwd
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.Info("claude run",
		"cwd", req.Cwd,
		"timeout_sec", timeoutSec,
		"skip_permissions", r.skipPermissions(req),
		"prompt_len", len(req.Prompt))

	runErr := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.Logger.Error("claude run timed out", "timeout_sec", timeoutSec)
		return RunResult{}, &TimeoutError{TimeoutSec: timeoutSec}
	}
	if runErr != nil {
		if errors.Is(runErr, exec.ErrNotFound) {
			return RunResult{}, &NotFoundError{Bin: r.Bin, Err: runErr}
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			r.Logger.Error("claude run failed", "exit_code", exitErr.ExitCode(), "stderr", truncate(stderr.String(), outputCap))
			return RunResult{}, &ExitError{
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
				Stdout:   truncate(strings.TrimSpace(stdout.String()), outputCap),
			}
		}
		return RunResult{}, &NotFoundError{Bin: r.Bin, Err: runErr}
	}

	raw := stdout.Bytes()
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		r.Logger.Error("claude stdout parse failed", "stdout", truncate(stdout.String(), outputCap))
		return RunResult{}, &ParseError{Stdout: truncate(stdout.String(), outputCap), Err: err}
	}

	r.Logger.Info("claude run succeeded", "stdout_len", len(raw))
	return RunResult{ExitCode: 0, StdoutJSON: json.RawMessage(bytes.TrimSpace(raw))}, nil
}
