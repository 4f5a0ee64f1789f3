package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Client is the slice of the Discord API the action handlers touch. Keeping
// it an interface lets tests substitute a recording stub for the live
// session.
type Client interface {
	BotUserID() string

	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
	ChannelEdit(ctx context.Context, channelID string, edit *discordgo.ChannelEdit) (*discordgo.Channel, error)
	ChannelDelete(ctx context.Context, channelID string) error

	ChannelMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error)
	ChannelMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]*discordgo.Message, error)
	ChannelMessageSend(ctx context.Context, channelID, content string, ref *discordgo.MessageReference) (*discordgo.Message, error)
	ChannelMessageSendComplex(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	ChannelMessageEdit(ctx context.Context, channelID, messageID, content string) (*discordgo.Message, error)
	ChannelMessageDelete(ctx context.Context, channelID, messageID string) error
	ChannelMessagePin(ctx context.Context, channelID, messageID string) error
	ChannelMessagesPinned(ctx context.Context, channelID string) ([]*discordgo.Message, error)

	MessageReactionAdd(ctx context.Context, channelID, messageID, emoji string) error
	MessageReactions(ctx context.Context, channelID, messageID, emoji string, limit int) ([]*discordgo.User, error)

	MessageThreadStart(ctx context.Context, channelID, messageID, name string, archiveMinutes int) (*discordgo.Channel, error)
	GuildThreadsActive(ctx context.Context, guildID string) (*discordgo.ThreadsList, error)

	Guild(ctx context.Context, guildID string) (*discordgo.Guild, error)
	GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	GuildChannelCreate(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)
	GuildMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
	GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error)
	GuildEmojis(ctx context.Context, guildID string) ([]*discordgo.Emoji, error)
	GuildEmojiCreate(ctx context.Context, guildID string, params *discordgo.EmojiParams) (*discordgo.Emoji, error)
	GuildStickerCreate(ctx context.Context, guildID, name, description, tags string, file []byte) (map[string]any, error)
	GuildScheduledEvents(ctx context.Context, guildID string) ([]*discordgo.GuildScheduledEvent, error)

	GuildMemberRoleAdd(ctx context.Context, guildID, userID, roleID string) error
	GuildMemberRoleRemove(ctx context.Context, guildID, userID, roleID string) error
	GuildMemberTimeout(ctx context.Context, guildID, userID string, until *time.Time) error
	GuildMemberKick(ctx context.Context, guildID, userID, reason string) error
	GuildBanCreate(ctx context.Context, guildID, userID, reason string, deleteDays int) error

	UserChannelPermissions(ctx context.Context, userID, channelID string) (int64, error)
	VoiceState(guildID, userID string) (*discordgo.VoiceState, error)

	FetchMedia(ctx context.Context, url string) ([]byte, error)
}

// sessionClient adapts a live *discordgo.Session to Client. Every REST call
// threads the caller's context through so a dispatch timeout cancels the
// underlying HTTP request.
type sessionClient struct {
	session *discordgo.Session
	http    *http.Client
}

// NewSessionClient wraps an open discordgo session.
func NewSessionClient(s *discordgo.Session) Client {
	return &sessionClient{
		session: s,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *sessionClient) BotUserID() string {
	if c.session.State != nil && c.session.State.User != nil {
		return c.session.State.User.ID
	}
	return ""
}

func (c *sessionClient) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	return c.session.Channel(channelID, discordgo.WithContext(ctx))
}

func (c *sessionClient) ChannelEdit(ctx context.Context, channelID string, edit *discordgo.ChannelEdit) (*discordgo.Channel, error) {
	return c.session.ChannelEdit(channelID, edit, discordgo.WithContext(ctx))
}

func (c *sessionClient) ChannelDelete(ctx context.Context, channelID string) error {
	_, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return err
}

func (c *sessionClient) ChannelMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error) {
	return c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
}

func (c *sessionClient) ChannelMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]*discordgo.Message, error) {
	return c.session.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
}

func (c *sessionClient) ChannelMessageSend(ctx context.Context, channelID, content string, ref *discordgo.MessageReference) (*discordgo.Message, error) {
	if ref != nil {
		return c.session.ChannelMessageSendReply(channelID, content, ref, discordgo.WithContext(ctx))
	}
	return c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
}

func (c *sessionClient) ChannelMessageSendComplex(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	return c.session.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
}

func (c *sessionClient) ChannelMessageEdit(ctx context.Context, channelID, messageID, content string) (*discordgo.Message, error) {
	return c.session.ChannelMessageEdit(channelID, messageID, content, discordgo.WithContext(ctx))
}

func (c *sessionClient) ChannelMessageDelete(ctx context.Context, channelID, messageID string) error {
	return c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func (c *sessionClient) ChannelMessagePin(ctx context.Context, channelID, messageID string) error {
	return c.session.ChannelMessagePin(channelID, messageID, discordgo.WithContext(ctx))
}

func (c *sessionClient) ChannelMessagesPinned(ctx context.Context, channelID string) ([]*discordgo.Message, error) {
	return c.session.ChannelMessagesPinned(channelID, discordgo.WithContext(ctx))
}

func (c *sessionClient) MessageReactionAdd(ctx context.Context, channelID, messageID, emoji string) error {
	return c.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
}

func (c *sessionClient) MessageReactions(ctx context.Context, channelID, messageID, emoji string, limit int) ([]*discordgo.User, error) {
	return c.session.MessageReactions(channelID, messageID, emoji, limit, "", "", discordgo.WithContext(ctx))
}

func (c *sessionClient) MessageThreadStart(ctx context.Context, channelID, messageID, name string, archiveMinutes int) (*discordgo.Channel, error) {
	return c.session.MessageThreadStart(channelID, messageID, name, archiveMinutes, discordgo.WithContext(ctx))
}

func (c *sessionClient) GuildThreadsActive(ctx context.Context, guildID string) (*discordgo.ThreadsList, error) {
	return c.session.GuildThreadsActive(guildID, discordgo.WithContext(ctx))
}

func (c *sessionClient) Guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	return c.session.Guild(guildID, discordgo.WithContext(ctx))
}

func (c *sessionClient) GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	return c.session.GuildChannels(guildID, discordgo.WithContext(ctx))
}

func (c *sessionClient) GuildChannelCreate(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	return c.session.GuildChannelCreateComplex(guildID, data, discordgo.WithContext(ctx))
}

func (c *sessionClient) GuildMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	return c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
}

func (c *sessionClient) GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	return c.session.GuildRoles(guildID, discordgo.WithContext(ctx))
}

func (c *sessionClient) GuildEmojis(ctx context.Context, guildID string) ([]*discordgo.Emoji, error) {
	return c.session.GuildEmojis(guildID, discordgo.WithContext(ctx))
}

func (c *sessionClient) GuildEmojiCreate(ctx context.Context, guildID string, params *discordgo.EmojiParams) (*discordgo.Emoji, error) {
	return c.session.GuildEmojiCreate(guildID, params, discordgo.WithContext(ctx))
}

// GuildStickerCreate posts the sticker upload as multipart form data against
// the REST API directly; the SDK has no helper for this endpoint.
func (c *sessionClient) GuildStickerCreate(ctx context.Context, guildID, name, description, tags string, file []byte) (map[string]any, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("name", name)
	_ = w.WriteField("description", description)
	_ = w.WriteField("tags", tags)
	part, err := w.CreateFormFile("file", "sticker.png")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	url := discordgo.EndpointGuild(guildID) + "/stickers"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.session.Identify.Token)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sticker upload failed: HTTP %d: %s", resp.StatusCode, body)
	}
	out := map[string]any{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("sticker upload: decode response: %w", err)
	}
	return out, nil
}

func (c *sessionClient) GuildScheduledEvents(ctx context.Context, guildID string) ([]*discordgo.GuildScheduledEvent, error) {
	return c.session.GuildScheduledEvents(guildID, true, discordgo.WithContext(ctx))
}

func (c *sessionClient) GuildMemberRoleAdd(ctx context.Context, guildID, userID, roleID string) error {
	return c.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (c *sessionClient) GuildMemberRoleRemove(ctx context.Context, guildID, userID, roleID string) error {
	return c.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (c *sessionClient) GuildMemberTimeout(ctx context.Context, guildID, userID string, until *time.Time) error {
	return c.session.GuildMemberTimeout(guildID, userID, until, discordgo.WithContext(ctx))
}

func (c *sessionClient) GuildMemberKick(ctx context.Context, guildID, userID, reason string) error {
	return c.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx))
}

func (c *sessionClient) GuildBanCreate(ctx context.Context, guildID, userID, reason string, deleteDays int) error {
	return c.session.GuildBanCreateWithReason(guildID, userID, reason, deleteDays, discordgo.WithContext(ctx))
}

func (c *sessionClient) UserChannelPermissions(ctx context.Context, userID, channelID string) (int64, error) {
	return c.session.UserChannelPermissions(userID, channelID)
}

func (c *sessionClient) VoiceState(guildID, userID string) (*discordgo.VoiceState, error) {
	if c.session.State == nil {
		return nil, nil
	}
	vs, err := c.session.State.VoiceState(guildID, userID)
	if err == discordgo.ErrStateNotFound {
		return nil, nil
	}
	return vs, err
}

func (c *sessionClient) FetchMedia(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
