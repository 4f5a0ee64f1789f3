package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const slashHelpText = `**Cinderella Discord Bot** 🔮

**スラッシュコマンド一覧:**
• ` + "`/task <タスク>`" + ` - スレッドでタスクを処理
• ` + "`/ask <質問>`" + ` - Claudeに質問する
• ` + "`/ping`" + ` - 動作確認
• ` + "`/info`" + ` - Bot情報
• ` + "`/help`" + ` - ヘルプ

**通常コマンド（!で始まる）:**
• ` + "`!ask <質問>`" + ` - Claudeに質問する
• ` + "`!task <タスク>`" + ` - スレッドでタスクを処理
• ` + "`!debate <トピック>`" + ` - Bot間議論を開始

**メンション:**
• ` + "`@BotName <質問>`" + ` - メンションだけで質問

**タスク機能について:**
` + "`/task`" + ` コマンドはスレッドを作成して、そこで会話します。
長いタスクや議論が必要な場合に便利です。`

func slashCommands() []*discordgo.ApplicationCommand {
	promptOption := func(desc string) []*discordgo.ApplicationCommandOption {
		return []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "prompt",
			Description: desc,
			Required:    true,
		}}
	}
	return []*discordgo.ApplicationCommand{
		{Name: "task", Description: "Claudeにタスクを依頼してスレッドで会話します", Options: promptOption("依頼したいタスクや質問を入力してください")},
		{Name: "ask", Description: "Claudeに質問します", Options: promptOption("質問を入力してください")},
		{Name: "ping", Description: "動作確認"},
		{Name: "info", Description: "ボット情報を表示"},
		{Name: "help", Description: "ヘルプを表示"},
	}
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	user := interactionUser(i.Interaction)
	if user == nil {
		return
	}

	switch data.Name {
	case "ping":
		b.respond(i.Interaction, pingReply)
	case "info":
		b.respond(i.Interaction, b.infoText())
	case "help":
		b.respond(i.Interaction, slashHelpText)
	case "ask":
		prompt := promptOptionValue(data)
		if prompt == "" {
			b.respond(i.Interaction, emptyAskReply)
			return
		}
		b.deferResponse(i.Interaction)
		pc := promptContext{
			ChannelID: i.ChannelID,
			GuildID:   i.GuildID,
			UserID:    user.ID,
			History:   b.channelHistory(i.ChannelID),
		}
		go b.processAsk(interactionReplier{api: b.api, interaction: i.Interaction}, pc, prompt)
	case "task":
		prompt := promptOptionValue(data)
		if prompt == "" {
			b.respond(i.Interaction, emptyTaskReply)
			return
		}
		b.deferResponse(i.Interaction)
		pc := promptContext{
			ChannelID: i.ChannelID,
			GuildID:   i.GuildID,
			UserID:    user.ID,
			History:   b.channelHistory(i.ChannelID),
		}
		r := interactionReplier{api: b.api, interaction: i.Interaction}
		channelID := i.ChannelID
		go b.processTask(r, pc, prompt, func() (*discordgo.Channel, error) {
			// Slash invocations have no message to thread from, so post a
			// starter and thread off that.
			starter, err := b.api.ChannelMessageSend(channelID, fmt.Sprintf("📋 **タスク**: %s", prompt))
			if err != nil {
				return nil, err
			}
			return b.api.MessageThreadStart(channelID, starter.ID, threadName(prompt), threadArchive)
		})
	}
}

func promptOptionValue(data discordgo.ApplicationCommandInteractionData) string {
	for _, opt := range data.Options {
		if opt != nil && opt.Name == "prompt" && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func (b *Bot) respond(i *discordgo.Interaction, text string) {
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: text},
	})
	if err != nil {
		b.logger.Error("interaction respond failed", "error", err)
	}
}

func (b *Bot) deferResponse(i *discordgo.Interaction) {
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		b.logger.Error("interaction defer failed", "error", err)
	}
}

// interactionReplier answers a deferred slash command through followups.
type interactionReplier struct {
	api         chatSession
	interaction *discordgo.Interaction
}

func (r interactionReplier) Send(text string) error {
	_, err := r.api.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{Content: text})
	return err
}

func (r interactionReplier) Reply(text string) error { return r.Send(text) }

func (r interactionReplier) React(emoji string) error { return nil }

func (r interactionReplier) Typing() {}
