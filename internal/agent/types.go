package agent

import (
	"encoding/json"
	"fmt"
)

const (
	DefaultTimeoutSec = 300
	MinTimeoutSec     = 1
	MaxTimeoutSec     = 3600

	// outputCap bounds how much raw subprocess output is carried in errors.
	outputCap = 2000
)

// DefaultAllowedTools is the minimal allow-list used when a request does not
// name its own tools.
var DefaultAllowedTools = []string{"Read"}

// RunRequest describes one claude CLI invocation.
type RunRequest struct {
	Prompt          string   `json:"prompt"`
	Cwd             string   `json:"cwd,omitempty"`
	TimeoutSec      int      `json:"timeout_sec,omitempty"`
	AllowedTools    []string `json:"allowed_tools,omitempty"`
	SkipPermissions bool     `json:"skip_permissions,omitempty"`
}

// RunResult is returned only when the subprocess exited zero within the
// timeout and produced valid JSON on stdout.
type RunResult struct {
	ExitCode   int             `json:"exit_code"`
	StdoutJSON json.RawMessage `json:"stdout_json"`
}

// ResultText extracts the "result" field of claude's JSON output. Missing or
// non-string results yield the empty string.
func (r RunResult) ResultText() string {
	var payload struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(r.StdoutJSON, &payload); err != nil {
		return ""
	}
	return payload.Result
}

// NotFoundError means the claude binary is not on PATH. This is a deployment
// problem, not a per-request one.
type NotFoundError struct {
	Bin string
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("claude command %q not found (check PATH): %v", e.Bin, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// TimeoutError means the subprocess ran past the request's budget.
type TimeoutError struct {
	TimeoutSec int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("claude run timed out after %ds", e.TimeoutSec)
}

// ExitError carries diagnostics for a non-zero exit.
type ExitError struct {
	ExitCode int    `json:"exit_code"`
	Stderr   string `json:"stderr"`
	Stdout   string `json:"stdout"`
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("claude exited with code %d", e.ExitCode)
}

// ParseError means the subprocess exited zero but stdout was not valid JSON.
type ParseError struct {
	Stdout string `json:"stdout"`
	Err    error  `json:"-"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("claude stdout is not valid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
