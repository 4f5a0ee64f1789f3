package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"cinderella/internal/agent"
	"cinderella/internal/config"
	"cinderella/internal/debate"
	"cinderella/internal/media"
)

const historyLimit = 10

// Gateway runs prompts through the claude gateway. Satisfied by
// gateway.Client.
type Gateway interface {
	Run(ctx context.Context, req agent.RunRequest) (agent.RunResult, error)
}

// chatSession is the slice of discordgo.Session the bot calls. Tests swap in
// a recording stub.
type chatSession interface {
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	MessageThreadStart(channelID, messageID, name string, archiveDuration int, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Bot owns the Discord session and routes inbound traffic three ways:
// commands and mentions go to the gateway, bot-authored messages in active
// debate channels go to the debate engine, and attachments on messages
// addressed to the bot are archived to the media store.
type Bot struct {
	cfg       config.Config
	gateway   Gateway
	debate    *debate.Engine
	media     *media.Store
	logger    *slog.Logger
	session   *discordgo.Session
	api       chatSession
	userID    string
	userName  string
	ready     atomic.Bool
	closeOnce sync.Once
}

func New(cfg config.Config, gw Gateway, engine *debate.Engine, store *media.Store, logger *slog.Logger) (*Bot, error) {
	token := strings.TrimSpace(cfg.Discord.Token)
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	if gw == nil {
		return nil, errors.New("gateway client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	b := &Bot{cfg: cfg, gateway: gw, debate: engine, media: store, logger: logger, session: s, api: s}
	s.AddHandler(b.onReady)
	s.AddHandler(b.onMessage)
	s.AddHandler(b.onInteraction)
	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageReactions
	return b, nil
}

func (b *Bot) Start() error {
	return b.session.Open()
}

func (b *Bot) Stop() error {
	var err error
	b.closeOnce.Do(func() { err = b.session.Close() })
	return err
}

// Ready reports whether the gateway connection is up. The action API refuses
// dispatches until this is true.
func (b *Bot) Ready() bool {
	return b.ready.Load()
}

// Session exposes the underlying Discord session so the action dispatcher
// can share the bot's connection.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// SetDebateEngine wires the debate loop in after construction. The engine
// needs the action dispatcher, which in turn needs this bot's session, so
// the two are connected once both exist. Must be called before Start.
func (b *Bot) SetDebateEngine(engine *debate.Engine) {
	b.debate = engine
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.userID = r.User.ID
	b.userName = r.User.Username
	b.logger.Info("discord session ready", "user", r.User.Username, "guilds", len(r.Guilds))

	cmds, err := b.api.ApplicationCommandBulkOverwrite(r.User.ID, "", slashCommands())
	if err != nil {
		b.logger.Error("slash command sync failed", "error", err)
	} else {
		b.logger.Info("slash commands synced", "count", len(cmds))
	}
	b.ready.Store(true)
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == b.userID {
		return
	}

	addressed := b.mentioned(m.Message) || b.replyToBot(m.Message)
	if addressed && b.media != nil && len(m.Attachments) > 0 {
		b.archiveAttachments(m.Message)
	}

	// An active debate claims the whole channel: other bots drive the loop
	// and everything else is ignored until the debate ends.
	if b.debate != nil && b.debate.Manager().Active(m.ChannelID) {
		if m.Author.Bot {
			go b.runDebateTurn(m.ChannelID)
		}
		return
	}

	if b.mentioned(m.Message) {
		prompt := extractPrompt(m.Content, b.userID)
		if prompt == "" {
			_, _ = b.api.ChannelMessageSend(m.ChannelID, emptyAskReply)
			return
		}
		go b.processAsk(messageReplier{api: b.api, msg: m.Message}, b.promptContext(m.Message), prompt)
		return
	}

	if m.Author.Bot {
		return
	}
	b.dispatchCommand(m.Message)
}

func (b *Bot) mentioned(m *discordgo.Message) bool {
	for _, u := range m.Mentions {
		if u != nil && u.ID == b.userID {
			return true
		}
	}
	return false
}

func (b *Bot) replyToBot(m *discordgo.Message) bool {
	if m.MessageReference == nil || m.MessageReference.MessageID == "" {
		return false
	}
	ref, err := b.api.ChannelMessage(m.ChannelID, m.MessageReference.MessageID)
	if err != nil || ref == nil || ref.Author == nil {
		return false
	}
	return ref.Author.ID == b.userID
}

func (b *Bot) archiveAttachments(m *discordgo.Message) {
	atts := make([]media.Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		atts = append(atts, media.Attachment{Name: a.Filename, URL: a.URL, Size: int64(a.Size)})
	}

	saved := b.media.SaveAll(context.Background(), atts)
	if len(saved) == 0 {
		return
	}
	notice := b.media.Notice(displayName(m.Author), saved)
	if _, err := b.api.ChannelMessageSend(m.ChannelID, notice); err != nil {
		b.logger.Error("attachment notice failed", "channel", m.ChannelID, "error", err)
	}
}

func (b *Bot) runDebateTurn(channelID string) {
	recent := b.recentDebateMessages(channelID)
	if _, err := b.debate.ProcessMessage(context.Background(), channelID, recent); err != nil {
		b.logger.Error("debate turn failed", "channel", channelID, "error", err)
	}
}

func (b *Bot) recentDebateMessages(channelID string) []debate.Message {
	msgs, err := b.api.ChannelMessages(channelID, historyLimit, "", "", "")
	if err != nil {
		b.logger.Warn("history fetch failed", "channel", channelID, "error", err)
		return nil
	}
	out := make([]debate.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || m.Author == nil {
			continue
		}
		out = append(out, debate.Message{ID: m.ID, AuthorName: displayName(m.Author), Content: m.Content})
	}
	return out
}

// promptContext gathers the Discord coordinates injected into every gateway
// prompt so the agent can drive the action API itself.
func (b *Bot) promptContext(m *discordgo.Message) promptContext {
	pc := promptContext{
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		UserID:    m.Author.ID,
		MessageID: m.ID,
		History:   b.channelHistory(m.ChannelID),
	}
	return pc
}

func (b *Bot) channelHistory(channelID string) string {
	msgs, err := b.api.ChannelMessages(channelID, historyLimit, "", "", "")
	if err != nil {
		b.logger.Warn("history fetch failed", "channel", channelID, "error", err)
		return ""
	}
	return historyText(msgs)
}

func displayName(u *discordgo.User) string {
	if u == nil {
		return "unknown"
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// messageReplier targets the channel a command message arrived in. Replies
// reference the invoking message.
type messageReplier struct {
	api chatSession
	msg *discordgo.Message
}

func (r messageReplier) Send(text string) error {
	_, err := r.api.ChannelMessageSend(r.msg.ChannelID, text)
	return err
}

func (r messageReplier) Reply(text string) error {
	_, err := r.api.ChannelMessageSendReply(r.msg.ChannelID, text, r.msg.Reference())
	return err
}

func (r messageReplier) React(emoji string) error {
	return r.api.MessageReactionAdd(r.msg.ChannelID, r.msg.ID, emoji)
}

func (r messageReplier) Typing() {
	_ = r.api.ChannelTyping(r.msg.ChannelID)
}

// threadReplier posts into a task thread. There is no invoking message inside
// the thread, so Reply degrades to Send and reactions are a no-op.
type threadReplier struct {
	api      chatSession
	threadID string
}

func (r threadReplier) Send(text string) error {
	_, err := r.api.ChannelMessageSend(r.threadID, text)
	return err
}

func (r threadReplier) Reply(text string) error { return r.Send(text) }

func (r threadReplier) React(emoji string) error { return nil }

func (r threadReplier) Typing() {
	_ = r.api.ChannelTyping(r.threadID)
}
