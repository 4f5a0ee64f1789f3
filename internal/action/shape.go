package action

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Shaping helpers turning discordgo structs into the JSON maps the action
// responses carry. IDs are always strings, timestamps RFC 3339.

func userShape(u *discordgo.User) map[string]any {
	if u == nil {
		return map[string]any{}
	}
	display := u.GlobalName
	if display == "" {
		display = u.Username
	}
	return map[string]any{
		"id":           u.ID,
		"username":     u.Username,
		"display_name": display,
		"bot":          u.Bot,
	}
}

func reactionShapes(reactions []*discordgo.MessageReactions) []map[string]any {
	out := make([]map[string]any, 0, len(reactions))
	for _, r := range reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		out = append(out, map[string]any{
			"emoji": r.Emoji.MessageFormat(),
			"count": r.Count,
		})
	}
	return out
}

func messageShape(m *discordgo.Message) map[string]any {
	return map[string]any{
		"id":        m.ID,
		"content":   m.Content,
		"author":    userShape(m.Author),
		"timestamp": formatTime(m.Timestamp),
		"reactions": reactionShapes(m.Reactions),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func roleColor(c int) string {
	return fmt.Sprintf("#%06x", c)
}

func channelTypeName(t discordgo.ChannelType) string {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return "text"
	case discordgo.ChannelTypeDM:
		return "dm"
	case discordgo.ChannelTypeGuildVoice:
		return "voice"
	case discordgo.ChannelTypeGroupDM:
		return "group_dm"
	case discordgo.ChannelTypeGuildCategory:
		return "category"
	case discordgo.ChannelTypeGuildNews:
		return "news"
	case discordgo.ChannelTypeGuildNewsThread:
		return "news_thread"
	case discordgo.ChannelTypeGuildPublicThread:
		return "public_thread"
	case discordgo.ChannelTypeGuildPrivateThread:
		return "private_thread"
	case discordgo.ChannelTypeGuildStageVoice:
		return "stage_voice"
	case discordgo.ChannelTypeGuildForum:
		return "forum"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// isTextLike reports whether a channel carries a readable message history.
func isTextLike(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildText,
		discordgo.ChannelTypeGuildNews,
		discordgo.ChannelTypeGuildNewsThread,
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread:
		return true
	default:
		return false
	}
}

func isThread(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildNewsThread,
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread:
		return true
	default:
		return false
	}
}

// permissionNames is the subset of the permission bitfield surfaced by the
// permissions action.
var permissionNames = []struct {
	Name string
	Bit  int64
}{
	{"administrator", discordgo.PermissionAdministrator},
	{"view_channel", discordgo.PermissionViewChannel},
	{"send_messages", discordgo.PermissionSendMessages},
	{"send_messages_in_threads", discordgo.PermissionSendMessagesInThreads},
	{"manage_messages", discordgo.PermissionManageMessages},
	{"manage_channels", discordgo.PermissionManageChannels},
	{"manage_threads", discordgo.PermissionManageThreads},
	{"manage_roles", discordgo.PermissionManageRoles},
	{"add_reactions", discordgo.PermissionAddReactions},
	{"attach_files", discordgo.PermissionAttachFiles},
	{"embed_links", discordgo.PermissionEmbedLinks},
	{"read_message_history", discordgo.PermissionReadMessageHistory},
	{"mention_everyone", discordgo.PermissionMentionEveryone},
	{"create_public_threads", discordgo.PermissionCreatePublicThreads},
	{"kick_members", discordgo.PermissionKickMembers},
	{"ban_members", discordgo.PermissionBanMembers},
	{"moderate_members", discordgo.PermissionModerateMembers},
}

func permissionShape(perms int64) map[string]any {
	out := make(map[string]any, len(permissionNames))
	for _, p := range permissionNames {
		out[p.Name] = perms&p.Bit != 0
	}
	return out
}
