package debate

import (
	"fmt"
	"strings"
)

// Message is one recent channel message, oldest first, as the prompt wants
// it. The bot layer converts from its own message type.
type Message struct {
	ID         string
	AuthorName string
	Content    string
}

const historyWindow = 10
const historyContentLimit = 200

// buildPrompt renders the debate prompt: persona, topic, turn budget, the
// recent conversation, and the action contract the agent must answer in.
func buildPrompt(c Context, recent []Message) string {
	persona, _ := LookupPersonality(c.Personality)

	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	var history strings.Builder
	for _, msg := range recent {
		content := msg.Content
		if runes := []rune(content); len(runes) > historyContentLimit {
			content = string(runes[:historyContentLimit])
		}
		fmt.Fprintf(&history, "- %s: %s\n", msg.AuthorName, content)
	}
	lastMessageID := ""
	if len(recent) > 0 {
		lastMessageID = recent[len(recent)-1].ID
	}

	return fmt.Sprintf(`%s

## 現在の議題
%s

## チャンネル情報
- チャンネルID: %s
- 直前のメッセージID: %s

## あなたの発言回数
%d/%d

## 直近の会話履歴
%s
## Discord操作ツール

あなたは以下のDiscord Actionを使用して操作できます：

### メッセージを送信
`+"```json"+`
{
  "action": "sendMessage",
  "channelId": "%[3]s",
  "content": "メッセージ内容"
}
`+"```"+`

### リアクションを追加
`+"```json"+`
{
  "action": "react",
  "channelId": "%[3]s",
  "messageId": "%[4]s",
  "emoji": "✅"
}
`+"```"+`

## 重要：応答しないメッセージ
以下のメッセージには**絶対に応答しない**でください：
- 「議論のまとめです」などの締めくくりメッセージ
- 「ご清聴ありがとうございました」などの終了宣言
- 「結論に達しました」などの合意表明
- すでに議論が終了しているメッセージ

これらは議論の終了を意味し、それ以上の応答は不要です。

## あなたのタスク

### ステップ1: 終了メッセージの確認
直近のメッセージが「議論のまとめ・終了宣言」か確認：
- 終了メッセージを検出した場合 → [NO_ACTION]

### ステップ2: 議論をまとめるべきか判断
以下の場合は議論をまとめて終了：
- あなたがすでに%[6]d回以上発言している
- 議論が収束し、新しい視点が出てこない
- 両者の意見が一致または尽きた

### ステップ3: アクションを選択

**IF まとめるべき:**
→ `+"`sendMessage`"+` アクションでまとめメッセージを送信

**ELSE IF 議論に参加すべき:**
→ `+"`sendMessage`"+` アクションで返信を送信

**ELSE:**
→ `+"`react`"+` アクションでリアクションを追加（または [NO_ACTION]）

---

## 出力形式

必ず以下のいずれかの形式で出力してください：

### 1. メッセージ送信
`+"```json"+`
{
  "action": "sendMessage",
  "channelId": "%[3]s",
  "content": "ここに返信内容を記入"
}
`+"```"+`

### 2. リアクション追加
`+"```json"+`
{
  "action": "react",
  "channelId": "%[3]s",
  "messageId": "%[4]s",
  "emoji": "👀"
}
`+"```"+`

### 3. 何もしない（終了メッセージ検出時）
`+"```"+`
[NO_ACTION]
`+"```"+`

必ず上記のいずれかの形式で出力してください。
`,
		persona.SystemPrompt,
		c.Topic,
		c.ChannelID,
		lastMessageID,
		c.TurnCount,
		c.MaxTurns,
		history.String(),
	)
}
