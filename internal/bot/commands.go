package bot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/bwmarrin/discordgo"

	"cinderella/internal/agent"
	"cinderella/internal/debate"
)

const (
	askTimeoutSec  = 300
	threadArchive  = 1440
	threadNameCap  = 50
	historyTailCap = 200
)

// askAllowedTools is what gateway runs launched from chat may use. The
// "discord" entry is the action-API skill, which is how the agent replies
// without going through this process.
var askAllowedTools = []string{"Read", "Bash", "Edit", "discord"}

const (
	pingReply        = "pon！……ふふ、生きてるよ"
	emptyAskReply    = "❌ 質問内容が空だよ……何か聞きたいことを入力してね！"
	emptyTaskReply   = "❌ タスク内容が空だよ……何か依頼したいことを入力してね！"
	emptyDebateReply = "❌ 議論のトピックを入力してね！\n例: `!debate AIと仕事`"
	timeoutReply     = "⏱️ タイムアウトしちゃった……時間のかかる処理は今のところ無理そう"
	connectReply     = "❌ cc-apiに接続できなかったみたい……Dockerコンテナが動いているか確認してね！"
	taskWorkingReply = "⏳ タスクを処理中です……"
	taskDoneReply    = "✅ タスク処理完了"
	taskSilentReply  = "✅ タスク処理完了（Discord APIで直接応答あり）"
)

const helpText = `**Cinderella Discord Bot** 🔮

**コマンド一覧:**
• ` + "`!ask <質問>`" + ` - Claudeに質問する
• ` + "`!task <タスク>`" + ` - スレッドでタスクを処理
• ` + "`!debate <トピック>`" + ` - Bot間議論を開始
• ` + "`@BotName <質問>`" + ` - メンションだけで質問（「ask」は不要）
• ` + "`!ping`" + ` - 動作確認
• ` + "`!info`" + ` - Bot情報

**使用例:**
` + "```" + `
!ask 現在の日時を表示して
!task このリポジトリの構造を説明して
!debate AIと仕事
@Cinderella 今日の天気は？
!ping
` + "```" + `

**議論機能について:**
` + "`!debate`" + ` コマンドで2人のBotが議論を行います。
ターン数が上限に達するか、議論が収束すると自動的にまとめが作成されます。

**タスク機能について:**
` + "`!task`" + ` コマンドはスレッドを作成して、そこで会話します。
長いタスクや議論が必要な場合に便利です。`

// replier abstracts where command output lands so the same flows serve
// prefix commands, mentions, threads, and slash interactions.
type replier interface {
	Send(text string) error
	Reply(text string) error
	React(emoji string) error
	Typing()
}

// promptContext is the Discord coordinates embedded in gateway prompts.
type promptContext struct {
	ChannelID string
	GuildID   string
	UserID    string
	MessageID string
	ThreadID  string
	History   string
}

func (b *Bot) dispatchCommand(m *discordgo.Message) {
	prefix := b.cfg.Discord.CommandPrefix
	if prefix == "" || !strings.HasPrefix(m.Content, prefix) {
		return
	}
	name, args := splitCommand(strings.TrimPrefix(m.Content, prefix))
	r := messageReplier{api: b.api, msg: m}

	switch name {
	case "ask":
		if args == "" {
			_ = r.Send(emptyAskReply)
			return
		}
		go b.processAsk(r, b.promptContext(m), args)
	case "task":
		if args == "" {
			_ = r.Send(emptyTaskReply)
			return
		}
		pc := b.promptContext(m)
		go b.processTask(r, pc, args, func() (*discordgo.Channel, error) {
			return b.api.MessageThreadStart(m.ChannelID, m.ID, threadName(args), threadArchive)
		})
	case "debate":
		b.cmdDebate(r, m.ChannelID, args)
	case "ping":
		_ = r.Send(pingReply)
	case "help":
		_ = r.Send(helpText)
	case "info":
		_ = r.Send(b.infoText())
	}
}

// processAsk runs the prompt through the gateway and relays the result. An
// empty result means the agent already replied through the action API, so
// nothing is sent.
func (b *Bot) processAsk(r replier, pc promptContext, prompt string) {
	b.logger.Info("ask received", "channel", pc.ChannelID, "user", pc.UserID, "prompt_len", len(prompt))
	r.Typing()

	res, err := b.gateway.Run(context.Background(), agent.RunRequest{
		Prompt:       buildEnhancedPrompt(prompt, pc),
		Cwd:          b.cfg.Gateway.Workspace,
		AllowedTools: askAllowedTools,
		TimeoutSec:   askTimeoutSec,
	})
	if err != nil {
		b.logger.Error("gateway run failed", "channel", pc.ChannelID, "error", err)
		_ = r.Send(gatewayErrorMessage(err))
		_ = r.React("❌")
		return
	}

	result := res.ResultText()
	if result == "" {
		b.logger.Info("empty result, assuming the agent replied directly", "channel", pc.ChannelID)
		return
	}
	for _, chunk := range splitMessage(result, messageChunkSize) {
		if err := r.Reply(chunk); err != nil {
			b.logger.Error("reply send failed", "channel", pc.ChannelID, "error", err)
			return
		}
	}
	_ = r.React("✅")
}

// processTask creates a thread and holds the whole exchange inside it.
func (b *Bot) processTask(r replier, pc promptContext, prompt string, startThread func() (*discordgo.Channel, error)) {
	b.logger.Info("task received", "channel", pc.ChannelID, "user", pc.UserID, "prompt_len", len(prompt))
	_ = r.React("🧵")

	thread, err := startThread()
	if err != nil {
		b.logger.Error("thread create failed", "channel", pc.ChannelID, "error", err)
		_ = r.Send(fmt.Sprintf("❌ スレッドの作成に失敗しました: %v", err))
		_ = r.React("❌")
		return
	}
	tr := threadReplier{api: b.api, threadID: thread.ID}
	_ = tr.Send(taskWorkingReply)
	tr.Typing()

	pc.ThreadID = thread.ID
	res, err := b.gateway.Run(context.Background(), agent.RunRequest{
		Prompt:       buildEnhancedPrompt(prompt, pc),
		Cwd:          b.cfg.Gateway.Workspace,
		AllowedTools: askAllowedTools,
		TimeoutSec:   askTimeoutSec,
	})
	if err != nil {
		b.logger.Error("gateway run failed", "thread", thread.ID, "error", err)
		_ = tr.Send(gatewayErrorMessage(err))
		_ = r.React("❌")
		return
	}

	result := res.ResultText()
	if result == "" {
		_ = tr.Send(taskSilentReply)
		_ = r.React("✅")
		return
	}
	for _, chunk := range splitMessage(result, messageChunkSize) {
		if err := tr.Send(chunk); err != nil {
			b.logger.Error("thread send failed", "thread", thread.ID, "error", err)
			return
		}
	}
	_ = tr.Send(taskDoneReply)
	_ = r.React("✅")
}

func (b *Bot) cmdDebate(r replier, channelID, raw string) {
	if raw == "" {
		_ = r.Send(emptyDebateReply)
		return
	}
	topic, personalityKey := parseDebateArgs(raw)
	if _, ok := debate.LookupPersonality(personalityKey); !ok {
		_ = r.Send(fmt.Sprintf("❌ 無効なパーソナリティです: %s\n選択肢: %s",
			personalityKey, strings.Join(debate.PersonalityKeys(), ", ")))
		return
	}
	_ = r.React("💬")

	_, p := b.debate.Start(context.Background(), channelID, topic, personalityKey)
	_ = r.Send(fmt.Sprintf("💬 議論を開始します: **%s**\n人格: %s", topic, p.Name))
	go b.runDebateTurn(channelID)
}

func (b *Bot) infoText() string {
	return fmt.Sprintf(`**Cinderella Discord Bot** ✨

🤖 Bot名: %s
📡 API: %s
🔧 許可ツール: %s
⏱️ タイムアウト: %d秒`,
		b.userName, b.cfg.Gateway.BaseURL, strings.Join(askAllowedTools[:3], ", "), askTimeoutSec)
}

// splitCommand separates a command name from its argument text. The name is
// lowercased; the argument keeps internal whitespace.
func splitCommand(s string) (string, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	if i := strings.IndexAny(s, " \t\n"); i >= 0 {
		return strings.ToLower(s[:i]), strings.TrimSpace(s[i:])
	}
	return strings.ToLower(s), ""
}

// extractPrompt strips the bot mention (both <@id> and <@!id> forms) and an
// optional leading "ask" verb, leaving the bare question.
func extractPrompt(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	content = strings.TrimSpace(content)

	lower := strings.ToLower(content)
	if lower == "ask" {
		return ""
	}
	if strings.HasPrefix(lower, "ask ") {
		return strings.TrimSpace(content[4:])
	}
	return content
}

// parseDebateArgs pulls an optional --personality=<key> flag out of the
// topic text. The default persona is the optimist.
func parseDebateArgs(raw string) (topic, personality string) {
	personality = "optimist"
	topic = strings.TrimSpace(raw)
	if before, after, found := strings.Cut(raw, "--personality="); found {
		topic = strings.TrimSpace(before)
		fields := strings.Fields(after)
		if len(fields) > 0 {
			personality = fields[0]
		}
	}
	return topic, personality
}

func threadName(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > threadNameCap {
		return "📋 タスク: " + string(runes[:threadNameCap]) + "..."
	}
	return "📋 タスク: " + prompt
}

func buildEnhancedPrompt(prompt string, pc promptContext) string {
	guild := pc.GuildID
	if guild == "" {
		guild = "N/A"
	}
	history := pc.History
	if history == "" {
		history = "(なし)"
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n---\n【Discord操作情報】\n")
	sb.WriteString("あなたは現在Discord上で動作しています。以下の情報を使用して、必要に応じて使用してください。\n\n")
	fmt.Fprintf(&sb, "- Channel ID: %s\n", pc.ChannelID)
	fmt.Fprintf(&sb, "- Guild ID: %s\n", guild)
	fmt.Fprintf(&sb, "- User ID: %s\n", pc.UserID)
	fmt.Fprintf(&sb, "- Message ID: %s\n", pc.MessageID)
	if pc.ThreadID != "" {
		fmt.Fprintf(&sb, "- Thread ID: %s\n", pc.ThreadID)
	}
	fmt.Fprintf(&sb, "\n【直近のチャット履歴】\n%s\n", history)
	if pc.ThreadID != "" {
		fmt.Fprintf(&sb, "\n【重要】\n回答は必ずスレッド(Thread ID: %s)内で行ってください。\n", pc.ThreadID)
	}
	return sb.String()
}

// historyText renders channel history, newest first, for prompt context.
func historyText(msgs []*discordgo.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		if m == nil || m.Author == nil {
			continue
		}
		content := m.Content
		if runes := []rune(content); len(runes) > historyTailCap {
			content = string(runes[:historyTailCap])
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", m.Timestamp.Format("15:04"), displayName(m.Author), content)
	}
	return strings.TrimSpace(sb.String())
}

// gatewayErrorMessage maps a gateway failure to the user-facing reply.
func gatewayErrorMessage(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return timeoutReply
	case errors.As(err, &netErr) && netErr.Timeout():
		return timeoutReply
	case errors.As(err, &netErr):
		return connectReply
	default:
		return "❌ エラー: " + err.Error()
	}
}
