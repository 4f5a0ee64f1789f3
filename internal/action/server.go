package action

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

type ServerConfig struct {
	Addr       string
	APIKey     string
	Dispatcher *Dispatcher
	Ready      func() bool
	Logger     *slog.Logger
}

// Server exposes the dispatcher over POST /v1/discord/action. Action
// failures are reported inside the envelope with HTTP 200; only transport
// problems (bad key, malformed body) use error status codes.
type Server struct {
	addr       string
	apiKey     string
	dispatcher *Dispatcher
	ready      func() bool
	logger     *slog.Logger
	httpServer *http.Server
}

func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ready := cfg.Ready
	if ready == nil {
		ready = func() bool { return true }
	}
	s := &Server{
		addr:       cfg.Addr,
		apiKey:     cfg.APIKey,
		dispatcher: cfg.Dispatcher,
		ready:      ready,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/discord/action", s.withAuth(s.handleAction))
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: mux}
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

// withAuth enforces X-API-Key when a key is configured. With no key set the
// endpoint is open, which is the development default.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Invalid API key"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "bot_ready": s.ready()})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "invalid json body"})
		return
	}

	if !s.ready() {
		writeJSON(w, http.StatusOK, Response{Success: false, Error: "Bot is not ready yet"})
		return
	}

	resp := s.dispatcher.Dispatch(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
