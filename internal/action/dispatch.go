package action

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cinderella/internal/audit"
)

const defaultActionTimeout = 30 * time.Second

// actionTimeouts overrides the default budget for actions known to take
// longer. Everything else gets defaultActionTimeout.
var actionTimeouts = map[string]time.Duration{
	"sendMessage":  30 * time.Second,
	"readMessages": 60 * time.Second,
	"threadList":   60 * time.Second,
	"reactions":    45 * time.Second,
}

// handlerTable binds every known action tag to its handler. The set of keys
// is the dispatcher's source of truth; Actions() derives from it.
func handlerTable() map[string]Handler {
	return map[string]Handler{
		"react":          handleReact,
		"reactions":      handleReactions,
		"sendMessage":    handleSendMessage,
		"sendFile":       handleSendFile,
		"editMessage":    handleEditMessage,
		"deleteMessage":  handleDeleteMessage,
		"readMessages":   handleReadMessages,
		"fetchMessage":   handleFetchMessage,
		"pinMessage":     handlePinMessage,
		"listPins":       handleListPins,
		"threadCreate":   handleThreadCreate,
		"threadList":     handleThreadList,
		"threadReply":    handleThreadReply,
		"sticker":        handleSticker,
		"poll":           handlePoll,
		"searchMessages": handleSearchMessages,

		"channelInfo":    handleChannelInfo,
		"channelList":    handleChannelList,
		"permissions":    handlePermissions,
		"channelCreate":  handleChannelCreate,
		"categoryCreate": handleCategoryCreate,
		"channelEdit":    handleChannelEdit,
		"channelMove":    handleChannelMove,
		"channelDelete":  handleChannelDelete,
		"categoryEdit":   handleCategoryEdit,
		"categoryDelete": handleCategoryDelete,

		"memberInfo":    handleMemberInfo,
		"roleInfo":      handleRoleInfo,
		"emojiList":     handleEmojiList,
		"emojiUpload":   handleEmojiUpload,
		"stickerUpload": handleStickerUpload,
		"voiceStatus":   handleVoiceStatus,
		"eventList":     handleEventList,
		"roleAdd":       handleRoleAdd,
		"roleRemove":    handleRoleRemove,
		"timeout":       handleTimeout,
		"kick":          handleKick,
		"ban":           handleBan,
	}
}

// Actions returns the sorted list of supported action tags.
func Actions() []string {
	table := handlerTable()
	out := make([]string, 0, len(table))
	for name := range table {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type task struct {
	ctx    context.Context
	req    Request
	result chan Response
}

// Dispatcher owns all access to the Discord client. HTTP handlers submit
// work through a channel; the dispatcher loop accepts each task and runs it
// on its own goroutine bound to a cancellable context, so the submitter can
// give up on a deadline without abandoning the client in a broken state.
type Dispatcher struct {
	client    Client
	handlers  map[string]Handler
	logger    *slog.Logger
	audit     *audit.Logger
	tasks     chan task
	timeoutFn func(action string) time.Duration
}

// NewDispatcher validates the handler table and prepares the task queue.
// Start must be called before Dispatch.
func NewDispatcher(client Client, logger *slog.Logger, auditLog *audit.Logger) (*Dispatcher, error) {
	table := handlerTable()
	for name, h := range table {
		if h == nil {
			return nil, fmt.Errorf("action %q has no handler", name)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:    client,
		handlers:  table,
		logger:    logger,
		audit:     auditLog,
		tasks:     make(chan task),
		timeoutFn: timeoutFor,
	}, nil
}

// Start runs the accept loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-d.tasks:
				handler := d.handlers[t.req.Action]
				go func(t task) {
					t.result <- handler(t.ctx, d.client, t.req)
				}(t)
			}
		}
	}()
}

func timeoutFor(action string) time.Duration {
	if t, ok := actionTimeouts[action]; ok {
		return t
	}
	return defaultActionTimeout
}

// Dispatch runs one action to completion or to its deadline. The returned
// envelope is always well formed; errors surface inside it, never as a
// transport failure.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	if _, known := d.handlers[req.Action]; !known {
		return fail("Unknown action: %s", req.Action)
	}

	timeout := d.timeoutFn(req.Action)
	d.logger.Info("discord action", "action", req.Action, "timeout", timeout)
	if d.audit != nil {
		_ = d.audit.LogEvent(ctx, audit.EventActionCall, map[string]any{
			"action":  req.Action,
			"channel": req.ChannelID,
		})
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := task{ctx: taskCtx, req: req, result: make(chan Response, 1)}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d.tasks <- t:
	case <-timer.C:
		return fail("Timeout after %ds", int(timeout.Seconds()))
	case <-ctx.Done():
		return fail("request cancelled")
	}

	var resp Response
	select {
	case resp = <-t.result:
	case <-timer.C:
		cancel()
		d.logger.Error("discord action timed out", "action", req.Action, "timeout", timeout)
		return fail("Timeout after %ds", int(timeout.Seconds()))
	case <-ctx.Done():
		cancel()
		return fail("request cancelled")
	}

	if d.audit != nil {
		_ = d.audit.LogEvent(ctx, audit.EventActionResult, map[string]any{
			"action":  req.Action,
			"channel": req.ChannelID,
			"success": resp.Success,
		})
	}
	if !resp.Success {
		d.logger.Warn("discord action failed", "action", req.Action, "error", resp.Error)
	}
	return resp
}
