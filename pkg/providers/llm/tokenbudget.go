package llm

import "strings"

// DefaultExplainKeywords are the German explain/elaborate cues spec.md
// §4.4's adaptive token budget rule names; configurable per deployment
// language.
var DefaultExplainKeywords = []string{"erzähl", "warum", "wie", "erkläre"}

const (
	tokenBudgetDefault = 120
	tokenBudgetLong    = 180
	tokenBudgetExplain = 220
	longInputChars     = 100
)

// adaptiveTokenBudget implements spec.md §4.4's rule: ~120 tokens by
// default, ~180 if the utterance contains "?" or exceeds 100
// characters, ~220 if it contains one of the configured explain
// keywords (checked first, so an explain-keyword question still gets the
// larger 220 budget).
func adaptiveTokenBudget(utterance string, explainKeywords []string) int {
	if explainKeywords == nil {
		explainKeywords = DefaultExplainKeywords
	}

	lower := strings.ToLower(utterance)
	for _, kw := range explainKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return tokenBudgetExplain
		}
	}

	if strings.Contains(utterance, "?") || len(utterance) > longInputChars {
		return tokenBudgetLong
	}

	return tokenBudgetDefault
}
