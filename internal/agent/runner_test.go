package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeScript drops an executable shell script into a temp dir and returns
// its path, for driving the runner against a fake claude binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures are unix-only")
	}
	path := filepath.Join(t.TempDir(), "claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestBuildArgs_AllowedTools(t *testing.T) {
	r := NewRunner("claude", false, discardLogger())
	args := r.buildArgs(RunRequest{Prompt: "hi", AllowedTools: []string{"Read", "Bash"}})

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--allowedTools Read,Bash") {
		t.Fatalf("expected allow-list flag, got %v", args)
	}
	if strings.Contains(joined, "--dangerously-skip-permissions") {
		t.Fatalf("bypass flag must not appear with an allow-list: %v", args)
	}
	if args[len(args)-1] != "hi" {
		t.Fatalf("prompt must be the final argument, got %v", args)
	}
}

func TestBuildArgs_DefaultToolsWhenEmpty(t *testing.T) {
	r := NewRunner("claude", false, discardLogger())
	args := r.buildArgs(RunRequest{Prompt: "hi"})
	if !strings.Contains(strings.Join(args, " "), "--allowedTools Read") {
		t.Fatalf("expected default Read allow-list, got %v", args)
	}
}

func TestBuildArgs_SkipPermissionsOmitsAllowList(t *testing.T) {
	r := NewRunner("claude", false, discardLogger())
	args := r.buildArgs(RunRequest{Prompt: "hi", AllowedTools: []string{"Read"}, SkipPermissions: true})

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--dangerously-skip-permissions") {
		t.Fatalf("expected bypass flag, got %v", args)
	}
	if strings.Contains(joined, "--allowedTools") {
		t.Fatalf("allow-list flag must be omitted under bypass: %v", args)
	}
}

func TestBuildArgs_ForceSkipOverridesRequest(t *testing.T) {
	r := NewRunner("claude", true, discardLogger())
	args := r.buildArgs(RunRequest{Prompt: "hi"})
	if !strings.Contains(strings.Join(args, " "), "--dangerously-skip-permissions") {
		t.Fatalf("env-forced bypass not applied: %v", args)
	}
}

func TestRun_ValidJSON(t *testing.T) {
	bin := writeScript(t, `echo '{"result":"hi"}'`)
	r := NewRunner(bin, false, discardLogger())

	res, err := r.Run(context.Background(), RunRequest{Prompt: "x", TimeoutSec: 10})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}
	if got := res.ResultText(); got != "hi" {
		t.Fatalf("expected result %q, got %q", "hi", got)
	}
}

func TestRun_NonJSONStdout(t *testing.T) {
	bin := writeScript(t, `echo 'not json'`)
	r := NewRunner(bin, false, discardLogger())

	_, err := r.Run(context.Background(), RunRequest{Prompt: "x", TimeoutSec: 10})
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if !strings.Contains(parseErr.Stdout, "not json") {
		t.Fatalf("parse error must carry raw stdout, got %q", parseErr.Stdout)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	bin := writeScript(t, "echo 'boom' >&2\nexit 3")
	r := NewRunner(bin, false, discardLogger())

	_, err := r.Run(context.Background(), RunRequest{Prompt: "x", TimeoutSec: 10})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", exitErr.ExitCode)
	}
	if !strings.Contains(exitErr.Stderr, "boom") {
		t.Fatalf("expected stderr diagnostics, got %q", exitErr.Stderr)
	}
}

func TestRun_Timeout(t *testing.T) {
	bin := writeScript(t, "sleep 5\necho '{}'")
	r := NewRunner(bin, false, discardLogger())

	_, err := r.Run(context.Background(), RunRequest{Prompt: "x", TimeoutSec: 1})
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.TimeoutSec != 1 {
		t.Fatalf("expected 1s budget in error, got %d", timeoutErr.TimeoutSec)
	}
}

func TestRun_BinaryNotFound(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "missing-claude"), false, discardLogger())
	_, err := r.Run(context.Background(), RunRequest{Prompt: "x", TimeoutSec: 5})
	var nfErr *NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
