package debate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cinderella/internal/action"
	"cinderella/internal/agent"
	"cinderella/internal/audit"
	"cinderella/internal/debate/store"
)

const (
	noActionSentinel = "[NO_ACTION]"
	gatewayTimeout   = 60
	replyLimit       = 1900
	defaultTopic     = "自由討論"
)

// Gateway runs a prompt through the claude HTTP gateway.
type Gateway interface {
	Run(ctx context.Context, req agent.RunRequest) (agent.RunResult, error)
}

// ActionRunner dispatches one Discord action. Satisfied by
// *action.Dispatcher.
type ActionRunner interface {
	Dispatch(ctx context.Context, req action.Request) action.Response
}

// TurnStore persists completed debate turns. Satisfied by *store.SQLiteStore.
type TurnStore interface {
	SaveTurn(ctx context.Context, turn store.Turn) error
}

type EngineConfig struct {
	Gateway   Gateway
	Actions   ActionRunner
	Manager   *Manager
	Store     TurnStore
	Policy    ConclusionKeywordPolicy
	Logger    *slog.Logger
	Audit     *audit.Logger
	Workspace string
}

// Engine drives the two-agent debate loop. It reacts to bot-authored
// messages in channels holding an active debate: build a prompt, run it
// through the gateway, and execute whichever action comes back.
type Engine struct {
	gateway   Gateway
	actions   ActionRunner
	manager   *Manager
	store     TurnStore
	policy    ConclusionKeywordPolicy
	logger    *slog.Logger
	audit     *audit.Logger
	workspace string
}

func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workspace := cfg.Workspace
	if workspace == "" {
		workspace = "/workspace"
	}
	policy := cfg.Policy
	if len(policy.Keywords) == 0 {
		policy = DefaultConclusionPolicy()
	}
	return &Engine{
		gateway:   cfg.Gateway,
		actions:   cfg.Actions,
		manager:   cfg.Manager,
		store:     cfg.Store,
		policy:    policy,
		logger:    logger,
		audit:     cfg.Audit,
		workspace: workspace,
	}
}

// Manager exposes the context manager for callers that need read access.
func (e *Engine) Manager() *Manager { return e.manager }

// Start begins a new debate in the channel, ending any previous one, and
// returns the opening context plus the persona display name.
func (e *Engine) Start(ctx context.Context, channelID, topic, personalityKey string) (Context, Personality) {
	if strings.TrimSpace(topic) == "" {
		topic = defaultTopic
	}
	e.manager.End(channelID)
	c := e.manager.Start(channelID, topic, personalityKey)
	persona, _ := LookupPersonality(personalityKey)
	if e.audit != nil {
		_ = e.audit.LogEvent(ctx, audit.EventDebateStart, map[string]any{
			"channel": channelID, "topic": topic, "personality": personalityKey,
		})
	}
	e.logger.Info("debate started", "channel", channelID, "topic", topic, "personality", personalityKey)
	return c, persona
}

// ProcessMessage handles one debate-eligible message. It reports whether an
// action was executed. Channels without an active debate are ignored; an
// ended debate never restarts without an explicit Start.
func (e *Engine) ProcessMessage(ctx context.Context, channelID string, recent []Message) (bool, error) {
	c, active := e.manager.Get(channelID)
	if !active {
		return false, nil
	}

	// Turn budget exhausted: close out instead of invoking the agent.
	if c.TurnCount >= c.MaxTurns {
		e.endWithNotice(ctx, c)
		return false, nil
	}

	prompt := buildPrompt(c, recent)
	runCtx, cancel := context.WithTimeout(ctx, (gatewayTimeout+5)*time.Second)
	defer cancel()
	res, err := e.gateway.Run(runCtx, agent.RunRequest{
		Prompt:       prompt,
		Cwd:          e.workspace,
		AllowedTools: []string{"Read"},
		TimeoutSec:   gatewayTimeout,
	})
	if err != nil {
		e.logger.Error("debate gateway call failed", "channel", channelID, "error", err)
		return false, err
	}

	text := res.ResultText()
	if strings.Contains(text, noActionSentinel) {
		e.logger.Info("debate agent chose no action", "channel", channelID)
		return false, nil
	}

	req, parsed := parseAction(text)
	if !parsed {
		// Raw text becomes an implicit reply.
		req = action.Request{
			Action:    "sendMessage",
			ChannelID: channelID,
			Content:   truncateRunes(text, replyLimit),
		}
	}
	if req.Action != "sendMessage" && req.Action != "react" {
		e.logger.Warn("debate agent requested disallowed action", "channel", channelID, "action", req.Action)
		return false, nil
	}

	resp := e.actions.Dispatch(ctx, req)
	if !resp.Success {
		e.logger.Warn("debate action failed", "channel", channelID, "action", req.Action, "error", resp.Error)
		return false, nil
	}

	if req.Action == "sendMessage" {
		updated, ok := e.manager.IncrementTurn(channelID)
		if ok {
			e.recordTurn(ctx, updated, req.Content)
			if e.policy.IsConclusion(req.Content) {
				e.logger.Info("debate concluded by keyword", "channel", channelID, "turn", updated.TurnCount)
				e.end(ctx, updated, "conclusion")
			}
		}
	}
	return true, nil
}

// End closes the channel's debate, if any.
func (e *Engine) End(ctx context.Context, channelID string) {
	if c, ok := e.manager.Get(channelID); ok {
		e.end(ctx, c, "manual")
	}
}

func (e *Engine) end(ctx context.Context, c Context, reason string) {
	e.manager.End(c.ChannelID)
	if e.audit != nil {
		_ = e.audit.LogEvent(ctx, audit.EventDebateEnd, map[string]any{
			"channel": c.ChannelID, "turns": c.TurnCount, "reason": reason,
		})
	}
}

func (e *Engine) endWithNotice(ctx context.Context, c Context) {
	notice := fmt.Sprintf("🏁 発言上限（%d回）に達したため、議論を終了します。", c.MaxTurns)
	resp := e.actions.Dispatch(ctx, action.Request{
		Action:    "sendMessage",
		ChannelID: c.ChannelID,
		Content:   notice,
	})
	if !resp.Success {
		e.logger.Warn("turn limit notice failed", "channel", c.ChannelID, "error", resp.Error)
	}
	e.logger.Info("debate hit turn limit", "channel", c.ChannelID, "turns", c.TurnCount)
	e.end(ctx, c, "turn_limit")
}

func (e *Engine) recordTurn(ctx context.Context, c Context, content string) {
	if e.audit != nil {
		_ = e.audit.LogEvent(ctx, audit.EventDebateTurn, map[string]any{
			"channel": c.ChannelID, "turn": c.TurnCount,
		})
	}
	if e.store == nil {
		return
	}
	err := e.store.SaveTurn(ctx, store.Turn{
		DebateID:    c.ID,
		ChannelID:   c.ChannelID,
		Topic:       c.Topic,
		Personality: c.Personality,
		Turn:        c.TurnCount,
		Content:     content,
	})
	if err != nil {
		e.logger.Error("debate transcript write failed", "channel", c.ChannelID, "error", err)
	}
}

// parseAction extracts a Discord action from the agent's reply, preferring a
// fenced json block, then any fenced block, then the bare text.
func parseAction(text string) (action.Request, bool) {
	candidate := strings.TrimSpace(text)
	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			candidate = strings.TrimSpace(rest[:j])
		}
	} else if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			candidate = strings.TrimSpace(rest[:j])
		}
	}

	var req action.Request
	if err := json.Unmarshal([]byte(candidate), &req); err != nil {
		return action.Request{}, false
	}
	if req.Action == "" {
		return action.Request{}, false
	}
	return req, true
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
