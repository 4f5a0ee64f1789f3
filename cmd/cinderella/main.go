package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cinderella/internal/action"
	"cinderella/internal/agent"
	"cinderella/internal/audit"
	"cinderella/internal/bot"
	"cinderella/internal/config"
	"cinderella/internal/debate"
	"cinderella/internal/debate/store"
	"cinderella/internal/gateway"
	"cinderella/internal/media"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	auditLog, err := audit.NewLogger(cfg.Log.Audit)
	if err != nil {
		return err
	}
	defer func() { _ = auditLog.Close() }()

	runner := agent.NewRunner(cfg.Gateway.ClaudeBin, cfg.Gateway.SkipPerms, logger.With("component", "agent"))
	gwServer := gateway.NewServer(gateway.Config{
		Addr:           fmt.Sprintf("%s:%d", cfg.Gateway.BindAddress, cfg.Gateway.Port),
		AllowedOrigins: cfg.Gateway.Origins(),
		Runner:         runner,
		Logger:         logger.With("component", "gateway"),
		Audit:          auditLog,
	})
	gwClient := gateway.NewClient(cfg.Gateway.BaseURL)

	turnStore, err := store.OpenSQLite(cfg.Debate.TranscriptPath)
	if err != nil {
		return err
	}
	defer func() { _ = turnStore.Close() }()

	mediaStore := media.NewStore(cfg.Media.Dir, cfg.Media.DisplayRoot, logger.With("component", "media"))

	b, err := bot.New(cfg, gwClient, nil, mediaStore, logger.With("component", "bot"))
	if err != nil {
		return err
	}

	dispatcher, err := action.NewDispatcher(action.NewSessionClient(b.Session()), logger.With("component", "action"), auditLog)
	if err != nil {
		return err
	}

	engine := debate.NewEngine(debate.EngineConfig{
		Gateway:   gwClient,
		Actions:   dispatcher,
		Manager:   debate.NewManager(cfg.Debate.MaxTurns),
		Store:     turnStore,
		Logger:    logger.With("component", "debate"),
		Audit:     auditLog,
		Workspace: cfg.Gateway.Workspace,
	})
	b.SetDebateEngine(engine)

	actionServer := action.NewServer(action.ServerConfig{
		Addr:       fmt.Sprintf("%s:%d", cfg.Action.BindAddress, cfg.Action.Port),
		APIKey:     cfg.Action.APIKey,
		Dispatcher: dispatcher,
		Ready:      b.Ready,
		Logger:     logger.With("component", "action"),
	})

	dispatcher.Start(ctx)

	errCh := make(chan error, 2)
	go func() { errCh <- gwServer.ListenAndServe(ctx) }()
	go func() { errCh <- actionServer.ListenAndServe(ctx) }()

	if err := b.Start(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	defer func() { _ = b.Stop() }()

	logger.Info("cinderella is up",
		"gateway_addr", fmt.Sprintf("%s:%d", cfg.Gateway.BindAddress, cfg.Gateway.Port),
		"action_addr", fmt.Sprintf("%s:%d", cfg.Action.BindAddress, cfg.Action.Port))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
