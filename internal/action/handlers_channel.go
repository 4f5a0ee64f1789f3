package action

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
)

func handleChannelInfo(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("channelInfo", "channelId", req.ChannelID); !ok {
		return resp
	}
	ch, resp, ok2 := lookupChannel(ctx, client, req.ChannelID)
	if !ok2 {
		return resp
	}

	data := map[string]any{
		"id":       ch.ID,
		"name":     ch.Name,
		"type":     channelTypeName(ch.Type),
		"position": ch.Position,
	}
	if ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews {
		data["topic"] = ch.Topic
		data["nsfw"] = ch.NSFW
		data["slowmode_delay"] = ch.RateLimitPerUser
	}
	if ch.ParentID != "" {
		if isThread(ch.Type) {
			data["parent_id"] = ch.ParentID
			data["message_count"] = ch.MessageCount
			data["owner_id"] = ch.OwnerID
		} else if parent, err := client.Channel(ctx, ch.ParentID); err == nil && parent != nil {
			data["category"] = map[string]any{"id": parent.ID, "name": parent.Name}
		}
	}
	return ok(data)
}

func handleChannelList(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("channelList", "guildId", req.GuildID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	channels, err := client.GuildChannels(ctx, req.GuildID)
	if err != nil {
		return failErr(err)
	}

	categories := map[string]string{}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory {
			categories[ch.ID] = ch.Name
		}
	}

	out := make([]map[string]any, 0, len(channels))
	for _, ch := range channels {
		data := map[string]any{
			"id":       ch.ID,
			"name":     ch.Name,
			"type":     channelTypeName(ch.Type),
			"position": ch.Position,
		}
		if ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews {
			data["topic"] = ch.Topic
			data["nsfw"] = ch.NSFW
		}
		if ch.ParentID != "" {
			data["category_id"] = ch.ParentID
			if name, ok := categories[ch.ParentID]; ok {
				data["category_name"] = name
			}
		}
		out = append(out, data)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["position"].(int) < out[j]["position"].(int)
	})
	return ok(map[string]any{"channels": out, "count": len(out)})
}

func handlePermissions(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("permissions", "channelId", req.ChannelID); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}
	botID := client.BotUserID()
	if botID == "" {
		return fail("Could not get bot member")
	}
	perms, err := client.UserChannelPermissions(ctx, botID, req.ChannelID)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"channel_id":  req.ChannelID,
		"permissions": permissionShape(perms),
		"bot_id":      botID,
	})
}

func channelTypeFromString(s string) discordgo.ChannelType {
	switch strings.ToLower(s) {
	case "voice":
		return discordgo.ChannelTypeGuildVoice
	case "category":
		return discordgo.ChannelTypeGuildCategory
	default:
		return discordgo.ChannelTypeGuildText
	}
}

// lookupCategory resolves a channel that must be a category.
func lookupCategory(ctx context.Context, client Client, id string) (*discordgo.Channel, bool) {
	ch, err := client.Channel(ctx, id)
	if err != nil || ch == nil || ch.Type != discordgo.ChannelTypeGuildCategory {
		return nil, false
	}
	return ch, true
}

func handleChannelCreate(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("channelCreate", "guildId", req.GuildID, "name", req.Name, "type", req.Type); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}

	data := discordgo.GuildChannelCreateData{
		Name:  req.Name,
		Type:  channelTypeFromString(req.Type),
		Topic: req.Topic,
	}
	if req.ParentID != "" {
		if _, ok := lookupCategory(ctx, client, req.ParentID); !ok {
			return fail("Parent category %s not found", req.ParentID)
		}
		data.ParentID = req.ParentID
	}
	if req.Position != nil {
		data.Position = *req.Position
	}

	ch, err := client.GuildChannelCreate(ctx, req.GuildID, data)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"channel_id": ch.ID,
		"name":       ch.Name,
		"type":       channelTypeName(ch.Type),
	})
}

func handleCategoryCreate(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("categoryCreate", "guildId", req.GuildID, "name", req.Name); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	ch, err := client.GuildChannelCreate(ctx, req.GuildID, discordgo.GuildChannelCreateData{
		Name: req.Name,
		Type: discordgo.ChannelTypeGuildCategory,
	})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"category_id": ch.ID, "name": ch.Name})
}

func handleChannelEdit(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("channelEdit", "channelId", req.ChannelID); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}

	edit := &discordgo.ChannelEdit{
		Name:     req.Name,
		Topic:    req.Topic,
		Position: req.Position,
		NSFW:     req.NSFW,
	}
	if _, err := client.ChannelEdit(ctx, req.ChannelID, edit); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"channel_id": req.ChannelID, "updated": true})
}

func handleChannelMove(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("channelMove", "guildId", req.GuildID, "channelId", req.ChannelID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}

	edit := &discordgo.ChannelEdit{Position: req.Position}
	if req.ParentID != "" {
		if _, ok := lookupCategory(ctx, client, req.ParentID); !ok {
			return fail("Parent category %s not found", req.ParentID)
		}
		edit.ParentID = req.ParentID
	}
	if _, err := client.ChannelEdit(ctx, req.ChannelID, edit); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"channel_id": req.ChannelID, "moved": true})
}

func handleChannelDelete(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("channelDelete", "channelId", req.ChannelID); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}
	if err := client.ChannelDelete(ctx, req.ChannelID); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"channel_id": req.ChannelID, "deleted": true})
}

func handleCategoryEdit(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("categoryEdit", "categoryId", req.CategoryID); !ok {
		return resp
	}
	if _, found := lookupCategory(ctx, client, req.CategoryID); !found {
		return fail("Category %s not found", req.CategoryID)
	}
	edit := &discordgo.ChannelEdit{Name: req.Name, Position: req.Position}
	if _, err := client.ChannelEdit(ctx, req.CategoryID, edit); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"category_id": req.CategoryID, "updated": true})
}

func handleCategoryDelete(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("categoryDelete", "categoryId", req.CategoryID); !ok {
		return resp
	}
	if _, found := lookupCategory(ctx, client, req.CategoryID); !found {
		return fail("Category %s not found", req.CategoryID)
	}
	if err := client.ChannelDelete(ctx, req.CategoryID); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"category_id": req.CategoryID, "deleted": true})
}
