package action

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Handler executes one action against the Discord client and returns the
// response envelope. Handlers never panic and never write HTTP themselves.
type Handler func(ctx context.Context, client Client, req Request) Response

func lookupChannel(ctx context.Context, client Client, channelID string) (*discordgo.Channel, Response, bool) {
	ch, err := client.Channel(ctx, channelID)
	if err != nil || ch == nil {
		return nil, fail("Channel %s not found", channelID), false
	}
	return ch, Response{}, true
}

func lookupGuild(ctx context.Context, client Client, guildID string) (*discordgo.Guild, Response, bool) {
	g, err := client.Guild(ctx, guildID)
	if err != nil || g == nil {
		return nil, fail("Guild %s not found", guildID), false
	}
	return g, Response{}, true
}

// resolveDestination turns the to field (channel:<id>) or a plain channelId
// into the target channel ID.
func resolveDestination(req Request) (string, Response, bool) {
	channelID := req.ChannelID
	if req.To != "" {
		switch {
		case strings.HasPrefix(req.To, "channel:"):
			channelID = strings.TrimPrefix(req.To, "channel:")
		case strings.HasPrefix(req.To, "user:"):
			return "", fail("DM not yet supported"), false
		default:
			return "", fail("to must be in format channel:<id>"), false
		}
	}
	if strings.TrimSpace(channelID) == "" {
		return "", fail("channelId or to is required"), false
	}
	return channelID, Response{}, true
}

func handleReact(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("react", "channelId", req.ChannelID, "messageId", req.MessageID, "emoji", req.Emoji); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}
	if err := client.MessageReactionAdd(ctx, req.ChannelID, req.MessageID, req.Emoji); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"message": "Reaction added"})
}

func handleReactions(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("reactions", "channelId", req.ChannelID, "messageId", req.MessageID); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}
	msg, err := client.ChannelMessage(ctx, req.ChannelID, req.MessageID)
	if err != nil {
		return failErr(err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	reactions := make([]map[string]any, 0, len(msg.Reactions))
	for _, r := range msg.Reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		users, err := client.MessageReactions(ctx, req.ChannelID, req.MessageID, r.Emoji.APIName(), limit)
		if err != nil {
			return failErr(err)
		}
		userList := make([]map[string]any, 0, len(users))
		for _, u := range users {
			userList = append(userList, userShape(u))
		}
		var emojiID any
		if r.Emoji.ID != "" {
			emojiID = r.Emoji.ID
		}
		reactions = append(reactions, map[string]any{
			"emoji": map[string]any{
				"name":     r.Emoji.MessageFormat(),
				"animated": r.Emoji.Animated,
				"id":       emojiID,
			},
			"count": r.Count,
			"users": userList,
		})
	}
	return ok(map[string]any{"reactions": reactions, "message_id": req.MessageID})
}

func handleSendMessage(ctx context.Context, client Client, req Request) Response {
	channelID, resp, ok2 := resolveDestination(req)
	if !ok2 {
		return resp
	}
	if _, resp, ok2 := lookupChannel(ctx, client, channelID); !ok2 {
		return resp
	}

	var ref *discordgo.MessageReference
	if req.ReplyTo != "" {
		ref = &discordgo.MessageReference{MessageID: req.ReplyTo, ChannelID: channelID}
	}
	msg, err := client.ChannelMessageSend(ctx, channelID, req.Content, ref)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"message_id": msg.ID})
}

func handleSendFile(ctx context.Context, client Client, req Request) Response {
	channelID, resp, ok2 := resolveDestination(req)
	if !ok2 {
		return resp
	}
	if strings.TrimSpace(req.FilePath) == "" {
		return fail("filePath is required for sendFile")
	}
	if _, resp, ok2 := lookupChannel(ctx, client, channelID); !ok2 {
		return resp
	}

	f, err := os.Open(req.FilePath)
	if err != nil {
		return fail("File %s not found", req.FilePath)
	}
	defer f.Close()

	name := filepath.Base(req.FilePath)
	msg, err := client.ChannelMessageSendComplex(ctx, channelID, &discordgo.MessageSend{
		Content: req.Content,
		Files:   []*discordgo.File{{Name: name, Reader: f}},
	})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"message_id": msg.ID, "file_name": name})
}

func handleEditMessage(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("editMessage", "channelId", req.ChannelID, "messageId", req.MessageID); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}
	msg, err := client.ChannelMessageEdit(ctx, req.ChannelID, req.MessageID, req.Content)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"message_id": msg.ID})
}

func handleDeleteMessage(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("deleteMessage", "channelId", req.ChannelID, "messageId", req.MessageID); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}
	if err := client.ChannelMessageDelete(ctx, req.ChannelID, req.MessageID); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"message": "Message deleted"})
}

func handleReadMessages(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("readMessages", "channelId", req.ChannelID); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	msgs, err := client.ChannelMessages(ctx, req.ChannelID, limit, "")
	if err != nil {
		return failErr(err)
	}

	// The API returns newest first; callers get oldest first.
	out := make([]map[string]any, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, messageShape(msgs[i]))
	}
	return ok(map[string]any{"messages": out, "count": len(out)})
}

func handleFetchMessage(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("fetchMessage", "guildId", req.GuildID, "channelId", req.ChannelID, "messageId", req.MessageID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}

	msg, err := client.ChannelMessage(ctx, req.ChannelID, req.MessageID)
	if err != nil {
		return failErr(err)
	}

	data := messageShape(msg)
	data["channel_id"] = req.ChannelID
	data["guild_id"] = req.GuildID
	data["pinned"] = msg.Pinned
	if msg.EditedTimestamp != nil {
		data["edited_timestamp"] = formatTime(*msg.EditedTimestamp)
	} else {
		data["edited_timestamp"] = nil
	}

	if msg.MessageReference != nil && msg.MessageReference.MessageID != "" {
		ref, err := client.ChannelMessage(ctx, req.ChannelID, msg.MessageReference.MessageID)
		if err != nil || ref == nil {
			data["reference"] = nil
		} else {
			content := ref.Content
			if len(content) > 200 {
				content = string([]rune(content)[:200])
			}
			var author map[string]any
			if ref.Author != nil {
				author = map[string]any{"id": ref.Author.ID, "username": ref.Author.Username}
			}
			data["reference"] = map[string]any{
				"message_id": ref.ID,
				"content":    content,
				"author":     author,
			}
		}
	}
	return ok(data)
}

func handlePinMessage(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("pinMessage", "channelId", req.ChannelID, "messageId", req.MessageID); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}
	if err := client.ChannelMessagePin(ctx, req.ChannelID, req.MessageID); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"message_id": req.MessageID, "pinned": true})
}

func handleListPins(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("listPins", "channelId", req.ChannelID); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}
	pins, err := client.ChannelMessagesPinned(ctx, req.ChannelID)
	if err != nil {
		return failErr(err)
	}
	out := make([]map[string]any, 0, len(pins))
	for _, m := range pins {
		out = append(out, map[string]any{
			"id":        m.ID,
			"content":   m.Content,
			"author":    userShape(m.Author),
			"timestamp": formatTime(m.Timestamp),
		})
	}
	return ok(map[string]any{"pins": out, "count": len(out)})
}

func handleThreadCreate(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("threadCreate", "channelId", req.ChannelID, "messageId", req.MessageID, "name", req.Name); !ok {
		return resp
	}
	if _, resp, ok := lookupChannel(ctx, client, req.ChannelID); !ok {
		return resp
	}
	thread, err := client.MessageThreadStart(ctx, req.ChannelID, req.MessageID, req.Name, 1440)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"thread_id": thread.ID, "name": thread.Name})
}

func handleThreadList(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("threadList", "guildId", req.GuildID); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}
	list, err := client.GuildThreadsActive(ctx, req.GuildID)
	if err != nil {
		return failErr(err)
	}
	threads := make([]map[string]any, 0, len(list.Threads))
	for _, t := range list.Threads {
		if t.ThreadMetadata != nil && t.ThreadMetadata.Archived {
			continue
		}
		threads = append(threads, map[string]any{
			"id":            t.ID,
			"name":          t.Name,
			"parent_id":     t.ParentID,
			"message_count": t.MessageCount,
		})
	}
	return ok(map[string]any{"threads": threads, "count": len(threads)})
}

func handleThreadReply(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("threadReply", "threadId", req.ThreadID, "content", req.Content); !ok {
		return resp
	}
	thread, err := client.Channel(ctx, req.ThreadID)
	if err != nil || thread == nil || !isThread(thread.Type) {
		return fail("Thread %s not found", req.ThreadID)
	}
	msg, err := client.ChannelMessageSend(ctx, req.ThreadID, req.Content, nil)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"message_id": msg.ID, "thread_id": req.ThreadID})
}

func handleSticker(ctx context.Context, client Client, req Request) Response {
	if req.To == "" {
		return fail("to parameter is required for sticker")
	}
	if !strings.HasPrefix(req.To, "channel:") {
		return fail("to must be in format channel:<id>")
	}
	channelID := strings.TrimPrefix(req.To, "channel:")
	if _, resp, ok := lookupChannel(ctx, client, channelID); !ok {
		return resp
	}
	if len(req.StickerIDs) == 0 {
		return fail("stickerIds is required")
	}

	stickers := req.StickerIDs
	if len(stickers) > 3 {
		stickers = stickers[:3]
	}
	_, err := client.ChannelMessageSendComplex(ctx, channelID, &discordgo.MessageSend{
		Content:    req.Content,
		StickerIDs: stickers,
	})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"sticker_count": len(stickers)})
}

var pollNumberEmoji = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟"}

func handlePoll(ctx context.Context, client Client, req Request) Response {
	if req.To == "" || req.Question == "" {
		return fail("to and question are required for poll")
	}
	if !strings.HasPrefix(req.To, "channel:") {
		return fail("to must be in format channel:<id>")
	}
	channelID := strings.TrimPrefix(req.To, "channel:")
	if _, resp, ok := lookupChannel(ctx, client, channelID); !ok {
		return resp
	}
	if len(req.Answers) < 2 {
		return fail("poll must have at least 2 answers")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**📊 %s**\n\n", req.Question)
	for i, answer := range req.Answers {
		fmt.Fprintf(&b, "%d. %s\n", i+1, answer)
	}
	if req.DurationHours > 0 {
		fmt.Fprintf(&b, "\n⏱️ 投票期間: %d時間", req.DurationHours)
	}
	if req.AllowMultiselect {
		b.WriteString("\n✅ 複数選択可能")
	}

	msg, err := client.ChannelMessageSendComplex(ctx, channelID, &discordgo.MessageSend{
		Content: req.Content,
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "🗳️ 投票",
			Description: b.String(),
			Color:       0x3498db,
		}},
	})
	if err != nil {
		return failErr(err)
	}

	for i := range req.Answers {
		if i >= len(pollNumberEmoji) {
			break
		}
		if err := client.MessageReactionAdd(ctx, channelID, msg.ID, pollNumberEmoji[i]); err != nil {
			return failErr(err)
		}
	}
	return ok(map[string]any{
		"message_id": msg.ID,
		"question":   req.Question,
		"answers":    req.Answers,
	})
}

func handleSearchMessages(ctx context.Context, client Client, req Request) Response {
	if resp, ok := requireFields("searchMessages", "guildId", req.GuildID, "searchContent", req.SearchContent); !ok {
		return resp
	}
	if _, resp, ok := lookupGuild(ctx, client, req.GuildID); !ok {
		return resp
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	var channels []*discordgo.Channel
	if len(req.ChannelIDs) > 0 {
		for _, id := range req.ChannelIDs {
			ch, err := client.Channel(ctx, id)
			if err != nil || ch == nil || !isTextLike(ch.Type) {
				continue
			}
			channels = append(channels, ch)
		}
	} else {
		all, err := client.GuildChannels(ctx, req.GuildID)
		if err != nil {
			return failErr(err)
		}
		for _, ch := range all {
			if isTextLike(ch.Type) {
				channels = append(channels, ch)
			}
		}
	}

	needle := strings.ToLower(req.SearchContent)
	var found []map[string]any
	for _, ch := range channels {
		msgs, err := client.ChannelMessages(ctx, ch.ID, 100, "")
		if err != nil {
			continue
		}
		for _, m := range msgs {
			if !strings.Contains(strings.ToLower(m.Content), needle) {
				continue
			}
			found = append(found, map[string]any{
				"id":           m.ID,
				"content":      m.Content,
				"author":       userShape(m.Author),
				"channel_id":   ch.ID,
				"channel_name": ch.Name,
				"timestamp":    formatTime(m.Timestamp),
			})
			if len(found) >= limit {
				break
			}
		}
		if len(found) >= limit {
			break
		}
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i]["timestamp"].(string) > found[j]["timestamp"].(string)
	})
	return ok(map[string]any{
		"messages": found,
		"count":    len(found),
		"query":    req.SearchContent,
	})
}
