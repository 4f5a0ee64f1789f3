package debate

import "sort"

// Personality is one of the fixed debate personas. The system prompt seeds
// the agent's stance; Name is what Discord users see.
type Personality struct {
	Key          string
	Name         string
	SystemPrompt string
}

var personalities = map[string]Personality{
	"optimist": {
		Key:  "optimist",
		Name: "楽観派AI",
		SystemPrompt: `あなたは楽観的なAIアシスタントです。
ポジティブな視点から議論に参加し、建設的な意見を述べてください。
相手の意見に対しても尊重しつつ、前向きな反論や補足を行ってください。`,
	},
	"pessimist": {
		Key:  "pessimist",
		Name: "慎重派AI",
		SystemPrompt: `あなたは慎重なAIアシスタントです。
リスクや問題点を指摘し、批判的思考を提供してください。
ただし、建設的な批判を心がけ、相手を尊重した言葉遣いをしてください。`,
	},
	"neutral": {
		Key:  "neutral",
		Name: "中立派AI",
		SystemPrompt: `あなたは中立的なAIアシスタントです。
客観的な視点から議論に参加し、バランスの取れた意見を述べてください。
両者の意見を整理し、建設的な方向性を提案してください。`,
	},
}

// LookupPersonality resolves a persona key. Unknown keys fall back to
// neutral with ok=false so callers can report the bad key.
func LookupPersonality(key string) (Personality, bool) {
	if p, ok := personalities[key]; ok {
		return p, true
	}
	return personalities["neutral"], false
}

// PersonalityKeys returns the sorted list of valid persona keys.
func PersonalityKeys() []string {
	keys := make([]string, 0, len(personalities))
	for k := range personalities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
