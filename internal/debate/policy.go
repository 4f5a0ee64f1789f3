package debate

import "strings"

// ConclusionKeywordPolicy decides whether a sent message closes the debate.
// Any keyword appearing anywhere in the content counts as a conclusion.
type ConclusionKeywordPolicy struct {
	Keywords []string
}

// DefaultConclusionPolicy matches the wrap-up phrases the debate prompt
// instructs the agent to use.
func DefaultConclusionPolicy() ConclusionKeywordPolicy {
	return ConclusionKeywordPolicy{
		Keywords: []string{"まとめ", "ご清聴", "結論", "終了", "conclusion"},
	}
}

func (p ConclusionKeywordPolicy) IsConclusion(content string) bool {
	for _, kw := range p.Keywords {
		if kw != "" && strings.Contains(content, kw) {
			return true
		}
	}
	return false
}
