package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// stubClient is an in-memory Client. Every method appends its name to calls
// so tests can assert which SDK operations ran (or that none did).
type stubClient struct {
	mu    sync.Mutex
	calls []string

	botID    string
	channels map[string]*discordgo.Channel
	guilds   map[string]*discordgo.Guild
	messages map[string]*discordgo.Message
	history  map[string][]*discordgo.Message
	pins     map[string][]*discordgo.Message
	members  map[string]*discordgo.Member
	roles    map[string][]*discordgo.Role
	emojis   map[string][]*discordgo.Emoji
	events   map[string][]*discordgo.GuildScheduledEvent
	threads  map[string]*discordgo.ThreadsList
	voice    map[string]*discordgo.VoiceState
	perms    int64
	media    []byte

	nextMessageID int

	sent []*discordgo.MessageSend
	refs []*discordgo.MessageReference
}

func newStubClient() *stubClient {
	return &stubClient{
		botID:    "bot-1",
		channels: map[string]*discordgo.Channel{},
		guilds:   map[string]*discordgo.Guild{},
		messages: map[string]*discordgo.Message{},
		history:  map[string][]*discordgo.Message{},
		pins:     map[string][]*discordgo.Message{},
		members:  map[string]*discordgo.Member{},
		roles:    map[string][]*discordgo.Role{},
		emojis:   map[string][]*discordgo.Emoji{},
		events:   map[string][]*discordgo.GuildScheduledEvent{},
		threads:  map[string]*discordgo.ThreadsList{},
		voice:    map[string]*discordgo.VoiceState{},
	}
}

func (c *stubClient) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *stubClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *stubClient) addTextChannel(id, guildID, name string) *discordgo.Channel {
	ch := &discordgo.Channel{ID: id, GuildID: guildID, Name: name, Type: discordgo.ChannelTypeGuildText}
	c.channels[id] = ch
	return ch
}

func (c *stubClient) newMessage(channelID, content string) *discordgo.Message {
	c.nextMessageID++
	return &discordgo.Message{
		ID:        fmt.Sprintf("msg-%d", c.nextMessageID),
		ChannelID: channelID,
		Content:   content,
		Author:    &discordgo.User{ID: "user-1", Username: "alice"},
		Timestamp: time.Now().UTC(),
	}
}

func (c *stubClient) BotUserID() string { return c.botID }

func (c *stubClient) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	c.record("Channel")
	return c.channels[channelID], nil
}

func (c *stubClient) ChannelEdit(ctx context.Context, channelID string, edit *discordgo.ChannelEdit) (*discordgo.Channel, error) {
	c.record("ChannelEdit")
	return c.channels[channelID], nil
}

func (c *stubClient) ChannelDelete(ctx context.Context, channelID string) error {
	c.record("ChannelDelete")
	delete(c.channels, channelID)
	return nil
}

func (c *stubClient) ChannelMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error) {
	c.record("ChannelMessage")
	m, ok := c.messages[channelID+"/"+messageID]
	if !ok {
		return nil, fmt.Errorf("404: Unknown Message")
	}
	return m, nil
}

func (c *stubClient) ChannelMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]*discordgo.Message, error) {
	c.record("ChannelMessages")
	msgs := c.history[channelID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (c *stubClient) ChannelMessageSend(ctx context.Context, channelID, content string, ref *discordgo.MessageReference) (*discordgo.Message, error) {
	c.record("ChannelMessageSend")
	c.refs = append(c.refs, ref)
	return c.newMessage(channelID, content), nil
}

func (c *stubClient) ChannelMessageSendComplex(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	c.record("ChannelMessageSendComplex")
	c.sent = append(c.sent, data)
	return c.newMessage(channelID, data.Content), nil
}

func (c *stubClient) ChannelMessageEdit(ctx context.Context, channelID, messageID, content string) (*discordgo.Message, error) {
	c.record("ChannelMessageEdit")
	m, ok := c.messages[channelID+"/"+messageID]
	if !ok {
		return nil, fmt.Errorf("404: Unknown Message")
	}
	m.Content = content
	return m, nil
}

func (c *stubClient) ChannelMessageDelete(ctx context.Context, channelID, messageID string) error {
	c.record("ChannelMessageDelete")
	delete(c.messages, channelID+"/"+messageID)
	return nil
}

func (c *stubClient) ChannelMessagePin(ctx context.Context, channelID, messageID string) error {
	c.record("ChannelMessagePin")
	return nil
}

func (c *stubClient) ChannelMessagesPinned(ctx context.Context, channelID string) ([]*discordgo.Message, error) {
	c.record("ChannelMessagesPinned")
	return c.pins[channelID], nil
}

func (c *stubClient) MessageReactionAdd(ctx context.Context, channelID, messageID, emoji string) error {
	c.record("MessageReactionAdd")
	return nil
}

func (c *stubClient) MessageReactions(ctx context.Context, channelID, messageID, emoji string, limit int) ([]*discordgo.User, error) {
	c.record("MessageReactions")
	return []*discordgo.User{{ID: "user-1", Username: "alice"}}, nil
}

func (c *stubClient) MessageThreadStart(ctx context.Context, channelID, messageID, name string, archiveMinutes int) (*discordgo.Channel, error) {
	c.record("MessageThreadStart")
	return &discordgo.Channel{ID: messageID, Name: name, Type: discordgo.ChannelTypeGuildPublicThread}, nil
}

func (c *stubClient) GuildThreadsActive(ctx context.Context, guildID string) (*discordgo.ThreadsList, error) {
	c.record("GuildThreadsActive")
	if list, ok := c.threads[guildID]; ok {
		return list, nil
	}
	return &discordgo.ThreadsList{}, nil
}

func (c *stubClient) Guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	c.record("Guild")
	return c.guilds[guildID], nil
}

func (c *stubClient) GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	c.record("GuildChannels")
	var out []*discordgo.Channel
	for _, ch := range c.channels {
		if ch.GuildID == guildID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c *stubClient) GuildChannelCreate(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	c.record("GuildChannelCreate")
	ch := &discordgo.Channel{ID: "created-1", GuildID: guildID, Name: data.Name, Type: data.Type}
	c.channels[ch.ID] = ch
	return ch, nil
}

func (c *stubClient) GuildMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	c.record("GuildMember")
	return c.members[guildID+"/"+userID], nil
}

func (c *stubClient) GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	c.record("GuildRoles")
	return c.roles[guildID], nil
}

func (c *stubClient) GuildEmojis(ctx context.Context, guildID string) ([]*discordgo.Emoji, error) {
	c.record("GuildEmojis")
	return c.emojis[guildID], nil
}

func (c *stubClient) GuildEmojiCreate(ctx context.Context, guildID string, params *discordgo.EmojiParams) (*discordgo.Emoji, error) {
	c.record("GuildEmojiCreate")
	return &discordgo.Emoji{ID: "emoji-1", Name: params.Name}, nil
}

func (c *stubClient) GuildStickerCreate(ctx context.Context, guildID, name, description, tags string, file []byte) (map[string]any, error) {
	c.record("GuildStickerCreate")
	return map[string]any{"id": "sticker-1", "name": name, "description": description}, nil
}

func (c *stubClient) GuildScheduledEvents(ctx context.Context, guildID string) ([]*discordgo.GuildScheduledEvent, error) {
	c.record("GuildScheduledEvents")
	return c.events[guildID], nil
}

func (c *stubClient) GuildMemberRoleAdd(ctx context.Context, guildID, userID, roleID string) error {
	c.record("GuildMemberRoleAdd")
	return nil
}

func (c *stubClient) GuildMemberRoleRemove(ctx context.Context, guildID, userID, roleID string) error {
	c.record("GuildMemberRoleRemove")
	return nil
}

func (c *stubClient) GuildMemberTimeout(ctx context.Context, guildID, userID string, until *time.Time) error {
	c.record("GuildMemberTimeout")
	return nil
}

func (c *stubClient) GuildMemberKick(ctx context.Context, guildID, userID, reason string) error {
	c.record("GuildMemberKick")
	return nil
}

func (c *stubClient) GuildBanCreate(ctx context.Context, guildID, userID, reason string, deleteDays int) error {
	c.record("GuildBanCreate")
	return nil
}

func (c *stubClient) UserChannelPermissions(ctx context.Context, userID, channelID string) (int64, error) {
	c.record("UserChannelPermissions")
	return c.perms, nil
}

func (c *stubClient) VoiceState(guildID, userID string) (*discordgo.VoiceState, error) {
	c.record("VoiceState")
	return c.voice[guildID+"/"+userID], nil
}

func (c *stubClient) FetchMedia(ctx context.Context, url string) ([]byte, error) {
	c.record("FetchMedia")
	if c.media == nil {
		return nil, fmt.Errorf("no media at %s", url)
	}
	return c.media, nil
}
