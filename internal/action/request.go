package action

import (
	"fmt"
	"strings"
)

// Request is the wire shape of POST /v1/discord/action: one required action
// tag plus a sparse bag of optional fields. Which fields matter depends on
// the action; handlers validate their own required subset and ignore the
// rest.
type Request struct {
	Action string `json:"action"`

	ChannelID string `json:"channelId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	GuildID   string `json:"guildId,omitempty"`
	UserID    string `json:"userId,omitempty"`

	// To addresses a destination as channel:<id> (user:<id> is reserved).
	To      string `json:"to,omitempty"`
	Content string `json:"content,omitempty"`
	ReplyTo string `json:"replyTo,omitempty"`

	FilePath string `json:"filePath,omitempty"`
	Emoji    string `json:"emoji,omitempty"`
	Name     string `json:"name,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
	Limit    int    `json:"limit,omitempty"`

	StickerIDs  []string `json:"stickerIds,omitempty"`
	MediaURL    string   `json:"mediaUrl,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	RoleIDs     []string `json:"roleIds,omitempty"`

	Question         string   `json:"question,omitempty"`
	Answers          []string `json:"answers,omitempty"`
	AllowMultiselect bool     `json:"allowMultiselect,omitempty"`
	DurationHours    int      `json:"durationHours,omitempty"`

	SearchContent string   `json:"searchContent,omitempty"`
	ChannelIDs    []string `json:"channelIds,omitempty"`

	Type     string `json:"type,omitempty"`
	ParentID string `json:"parentId,omitempty"`
	Topic    string `json:"topic,omitempty"`
	Position *int   `json:"position,omitempty"`
	NSFW     *bool  `json:"nsfw,omitempty"`

	CategoryID        string `json:"categoryId,omitempty"`
	DurationMinutes   int    `json:"durationMinutes,omitempty"`
	Reason            string `json:"reason,omitempty"`
	DeleteMessageDays int    `json:"deleteMessageDays,omitempty"`
	RoleID            string `json:"roleId,omitempty"`
}

// Response is the uniform envelope every action returns. Exactly one of
// Data/Error is meaningful, gated by Success.
type Response struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func ok(data map[string]any) Response {
	return Response{Success: true, Data: data}
}

func fail(format string, args ...any) Response {
	return Response{Success: false, Error: fmt.Sprintf(format, args...)}
}

func failErr(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// requireFields fails fast before any SDK call when a handler's required
// fields are blank. The pairs alternate field name, field value.
func requireFields(action string, pairs ...string) (Response, bool) {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) == 0 {
		return Response{}, true
	}

	var names []string
	for i := 0; i+1 < len(pairs); i += 2 {
		names = append(names, pairs[i])
	}
	verb := "are"
	if len(names) == 1 {
		verb = "is"
	}
	return fail("%s %s required for %s", joinFields(names), verb, action), false
}

func joinFields(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}
