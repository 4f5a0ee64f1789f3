package action

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

func lookupMember(ctx context.Context, client Client, guildID, userID string) (*discordgo.Member, Response, bool) {
	m, err := client.GuildMember(ctx, guildID, userID)
	if err != nil || m == nil {
		return nil, fail("Member %s not found", userID), false
	}
	return m, Response{}, true
}

func handleMemberInfo(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("memberInfo", "guildId", req.GuildID, "userId", req.UserID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	member, resp, ok2 := lookupMember(ctx, client, req.GuildID, req.UserID)
	if !ok2 {
		return resp
	}

	guildRoles, err := client.GuildRoles(ctx, req.GuildID)
	if err != nil {
		return failErr(err)
	}
	byID := make(map[string]*discordgo.Role, len(guildRoles))
	for _, r := range guildRoles {
		byID[r.ID] = r
	}
	roles := make([]map[string]any, 0, len(member.Roles))
	for _, id := range member.Roles {
		r, found := byID[id]
		if !found {
			continue
		}
		roles = append(roles, map[string]any{
			"id":       r.ID,
			"name":     r.Name,
			"color":    roleColor(r.Color),
			"position": r.Position,
		})
	}

	data := map[string]any{
		"id":      req.UserID,
		"roles":   roles,
		"pending": member.Pending,
	}
	if member.User != nil {
		display := member.Nick
		if display == "" {
			display = member.User.GlobalName
		}
		if display == "" {
			display = member.User.Username
		}
		data["username"] = member.User.Username
		data["display_name"] = display
		data["bot"] = member.User.Bot
		data["avatar_url"] = member.User.AvatarURL("")
	}
	if !member.JoinedAt.IsZero() {
		data["joined_at"] = formatTime(member.JoinedAt)
	} else {
		data["joined_at"] = nil
	}
	if member.PremiumSince != nil {
		data["premium_since"] = formatTime(*member.PremiumSince)
	} else {
		data["premium_since"] = nil
	}
	return ok(data)
}

func handleRoleInfo(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("roleInfo", "guildId", req.GuildID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	guildRoles, err := client.GuildRoles(ctx, req.GuildID)
	if err != nil {
		return failErr(err)
	}

	roles := make([]map[string]any, 0, len(guildRoles))
	for _, r := range guildRoles {
		roles = append(roles, map[string]any{
			"id":          r.ID,
			"name":        r.Name,
			"color":       roleColor(r.Color),
			"hoist":       r.Hoist,
			"position":    r.Position,
			"permissions": fmt.Sprintf("%d", r.Permissions),
			"managed":     r.Managed,
			"mentionable": r.Mentionable,
		})
	}
	// Highest role first.
	sort.Slice(roles, func(i, j int) bool {
		return roles[i]["position"].(int) > roles[j]["position"].(int)
	})
	return ok(map[string]any{"roles": roles, "count": len(roles)})
}

func emojiURL(e *discordgo.Emoji) string {
	ext := "png"
	if e.Animated {
		ext = "gif"
	}
	return fmt.Sprintf("https://cdn.discordapp.com/emojis/%s.%s", e.ID, ext)
}

func handleEmojiList(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("emojiList", "guildId", req.GuildID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	guildEmojis, err := client.GuildEmojis(ctx, req.GuildID)
	if err != nil {
		return failErr(err)
	}
	emojis := make([]map[string]any, 0, len(guildEmojis))
	for _, e := range guildEmojis {
		emojis = append(emojis, map[string]any{
			"id":        e.ID,
			"name":      e.Name,
			"animated":  e.Animated,
			"available": e.Available,
			"url":       emojiURL(e),
		})
	}
	return ok(map[string]any{"emojis": emojis, "count": len(emojis)})
}

func handleEmojiUpload(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("emojiUpload", "guildId", req.GuildID, "name", req.Name, "mediaUrl", req.MediaURL); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}

	image, err := client.FetchMedia(ctx, req.MediaURL)
	if err != nil {
		return fail("Failed to download media: %v", err)
	}
	dataURI := fmt.Sprintf("data:%s;base64,%s",
		http.DetectContentType(image), base64.StdEncoding.EncodeToString(image))

	emoji, err := client.GuildEmojiCreate(ctx, req.GuildID, &discordgo.EmojiParams{
		Name:  req.Name,
		Image: dataURI,
		Roles: req.RoleIDs,
	})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"emoji_id": emoji.ID,
		"name":     emoji.Name,
		"url":      emojiURL(emoji),
	})
}

func handleStickerUpload(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("stickerUpload", "guildId", req.GuildID, "name", req.Name, "mediaUrl", req.MediaURL); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}

	image, err := client.FetchMedia(ctx, req.MediaURL)
	if err != nil {
		return fail("Failed to download media: %v", err)
	}
	tags := "sticker"
	if len(req.Tags) > 0 {
		tags = strings.Join(req.Tags, ",")
	}
	sticker, err := client.GuildStickerCreate(ctx, req.GuildID, req.Name, req.Description, tags, image)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"sticker_id":  sticker["id"],
		"name":        sticker["name"],
		"description": sticker["description"],
	})
}

func handleVoiceStatus(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("voiceStatus", "guildId", req.GuildID, "userId", req.UserID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	if _, resp, ok2 := lookupMember(ctx, client, req.GuildID, req.UserID); !ok2 {
		return resp
	}

	vs, err := client.VoiceState(req.GuildID, req.UserID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return ok(map[string]any{
			"in_voice":     false,
			"channel_id":   nil,
			"channel_name": nil,
		})
	}

	channelName := ""
	if ch, err := client.Channel(ctx, vs.ChannelID); err == nil && ch != nil {
		channelName = ch.Name
	}
	return ok(map[string]any{
		"in_voice":      true,
		"channel_id":    vs.ChannelID,
		"channel_name":  channelName,
		"muted":         vs.SelfMute || vs.Mute,
		"deafened":      vs.SelfDeaf || vs.Deaf,
		"self_muted":    vs.SelfMute,
		"self_deafened": vs.SelfDeaf,
		"self_video":    vs.SelfStream,
	})
}

func eventStatusName(s discordgo.GuildScheduledEventStatus) string {
	switch s {
	case discordgo.GuildScheduledEventStatusScheduled:
		return "scheduled"
	case discordgo.GuildScheduledEventStatusActive:
		return "active"
	case discordgo.GuildScheduledEventStatusCompleted:
		return "completed"
	case discordgo.GuildScheduledEventStatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func handleEventList(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("eventList", "guildId", req.GuildID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	scheduled, err := client.GuildScheduledEvents(ctx, req.GuildID)
	if err != nil {
		return failErr(err)
	}

	events := make([]map[string]any, 0, len(scheduled))
	for _, ev := range scheduled {
		data := map[string]any{
			"id":               ev.ID,
			"name":             ev.Name,
			"description":      ev.Description,
			"start_time":       formatTime(ev.ScheduledStartTime),
			"status":           eventStatusName(ev.Status),
			"subscriber_count": ev.UserCount,
			"creator_id":       ev.CreatorID,
		}
		if ev.ScheduledEndTime != nil {
			data["end_time"] = formatTime(*ev.ScheduledEndTime)
		} else {
			data["end_time"] = nil
		}
		if ev.EntityMetadata.Location != "" {
			data["location"] = ev.EntityMetadata.Location
		} else {
			data["location"] = nil
		}
		events = append(events, data)
	}
	return ok(map[string]any{"events": events, "count": len(events)})
}

func lookupRole(ctx context.Context, client Client, guildID, roleID string) (*discordgo.Role, bool) {
	roles, err := client.GuildRoles(ctx, guildID)
	if err != nil {
		return nil, false
	}
	for _, r := range roles {
		if r.ID == roleID {
			return r, true
		}
	}
	return nil, false
}

func handleRoleAdd(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("roleAdd", "guildId", req.GuildID, "userId", req.UserID, "roleId", req.RoleID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	if _, resp, ok2 := lookupMember(ctx, client, req.GuildID, req.UserID); !ok2 {
		return resp
	}
	role, found := lookupRole(ctx, client, req.GuildID, req.RoleID)
	if !found {
		return fail("Role %s not found", req.RoleID)
	}
	if err := client.GuildMemberRoleAdd(ctx, req.GuildID, req.UserID, req.RoleID); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"user_id":   req.UserID,
		"role_id":   req.RoleID,
		"role_name": role.Name,
		"added":     true,
	})
}

func handleRoleRemove(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("roleRemove", "guildId", req.GuildID, "userId", req.UserID, "roleId", req.RoleID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	if _, resp, ok2 := lookupMember(ctx, client, req.GuildID, req.UserID); !ok2 {
		return resp
	}
	role, found := lookupRole(ctx, client, req.GuildID, req.RoleID)
	if !found {
		return fail("Role %s not found", req.RoleID)
	}
	if err := client.GuildMemberRoleRemove(ctx, req.GuildID, req.UserID, req.RoleID); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"user_id":   req.UserID,
		"role_id":   req.RoleID,
		"role_name": role.Name,
		"removed":   true,
	})
}

func handleTimeout(ctx context.Context, client Client, req Request) Response {
	if req.GuildID == "" || req.UserID == "" || req.DurationMinutes <= 0 {
		return fail("guildId, userId, and durationMinutes are required for timeout")
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	if _, resp, ok2 := lookupMember(ctx, client, req.GuildID, req.UserID); !ok2 {
		return resp
	}

	until := time.Now().UTC().Add(time.Duration(req.DurationMinutes) * time.Minute)
	if err := client.GuildMemberTimeout(ctx, req.GuildID, req.UserID, &until); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"user_id":          req.UserID,
		"duration_minutes": req.DurationMinutes,
		"timeout_until":    formatTime(until),
		"reason":           req.Reason,
	})
}

func handleKick(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("kick", "guildId", req.GuildID, "userId", req.UserID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	if _, resp, ok2 := lookupMember(ctx, client, req.GuildID, req.UserID); !ok2 {
		return resp
	}
	if err := client.GuildMemberKick(ctx, req.GuildID, req.UserID, req.Reason); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"user_id": req.UserID,
		"kicked":  true,
		"reason":  req.Reason,
	})
}

func handleBan(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("ban", "guildId", req.GuildID, "userId", req.UserID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	if _, resp, ok2 := lookupMember(ctx, client, req.GuildID, req.UserID); !ok2 {
		return resp
	}
	if err := client.GuildBanCreate(ctx, req.GuildID, req.UserID, req.Reason, req.DeleteMessageDays); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"user_id":             req.UserID,
		"banned":              true,
		"reason":              req.Reason,
		"delete_message_days": req.DeleteMessageDays,
	})
}
