package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"cinderella/internal/agent"
	"cinderella/internal/audit"
)

// Runner is the subset of the CLI runner the server needs; tests substitute
// their own.
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest) (agent.RunResult, error)
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	Runner         Runner
	Logger         *slog.Logger
	Audit          *audit.Logger
}

// Server wraps the claude CLI behind POST /v1/claude/run. Unlike the action
// API, this endpoint signals failure through HTTP status codes: 500 for
// configuration, exit, and parse failures, 504 for timeouts.
type Server struct {
	addr       string
	origins    []string
	runner     Runner
	logger     *slog.Logger
	audit      *audit.Logger
	httpServer *http.Server
}

type runResponse struct {
	ExitCode   int             `json:"exit_code"`
	StdoutJSON json.RawMessage `json:"stdout_json"`
}

type errorResponse struct {
	Detail any `json:"detail"`
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:    cfg.Addr,
		origins: cfg.AllowedOrigins,
		runner:  cfg.Runner,
		logger:  logger,
		audit:   cfg.Audit,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/claude/run", s.handleRun)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: s.corsMiddleware(mux)}
	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req agent.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid json body"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "prompt is required"})
		return
	}
	if req.TimeoutSec == 0 {
		req.TimeoutSec = agent.DefaultTimeoutSec
	}
	if req.TimeoutSec < agent.MinTimeoutSec || req.TimeoutSec > agent.MaxTimeoutSec {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Detail: fmt.Sprintf("timeout_sec must be between %d and %d", agent.MinTimeoutSec, agent.MaxTimeoutSec),
		})
		return
	}

	runID := uuid.NewString()
	s.logger.Info("gateway run", "run_id", runID, "timeout_sec", req.TimeoutSec, "prompt_len", len(req.Prompt))
	if s.audit != nil {
		_ = s.audit.LogEvent(r.Context(), audit.EventRunStart, map[string]any{
			"run_id": runID, "timeout_sec": req.TimeoutSec,
		})
	}

	res, err := s.runner.Run(r.Context(), req)
	if s.audit != nil {
		outcome := "ok"
		if err != nil {
			outcome = err.Error()
		}
		_ = s.audit.LogEvent(r.Context(), audit.EventRunEnd, map[string]any{
			"run_id": runID, "outcome": outcome,
		})
	}
	if err != nil {
		s.writeRunError(w, runID, err)
		return
	}

	writeJSON(w, http.StatusOK, runResponse{ExitCode: res.ExitCode, StdoutJSON: res.StdoutJSON})
}

func (s *Server) writeRunError(w http.ResponseWriter, runID string, err error) {
	var (
		notFound *agent.NotFoundError
		timeout  *agent.TimeoutError
		exit     *agent.ExitError
		parse    *agent.ParseError
	)

	switch {
	case errors.As(err, &timeout):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Detail: "claude run timed out"})
	case errors.As(err, &notFound):
		s.logger.Error("claude binary missing", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "claude command not found (check PATH)"})
	case errors.As(err, &exit):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: exit})
	case errors.As(err, &parse):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: map[string]string{
			"error":  "claude stdout could not be parsed as JSON",
			"stdout": parse.Stdout,
		}})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
	}
}

// corsMiddleware applies the configured origin allow-list. An empty list
// means no cross-origin requests are accepted.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.origins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
