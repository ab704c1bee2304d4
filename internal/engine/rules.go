package engine

import (
	"regexp"
	"strings"
)

// Bucket labels.
const (
	LabelQuickWins     = "2-minute Wins"
	LabelPrep          = "Prep & Planning"
	LabelDeepWork      = "Deep Work"
	LabelPersonalCare  = "Personal Care"
	LabelMiscellaneous = "Miscellaneous"
)

// Rule assigns an item to Label when Match reports true.
type Rule struct {
	Label string
	Match func(item string) bool
}

// Rules are evaluated in order; the first match wins.
type Rules []Rule

// Classify returns the label of the first matching rule, or Miscellaneous.
func (r Rules) Classify(item string) string {
	for _, rule := range r {
		if rule.Match(item) {
			return rule.Label
		}
	}
	return LabelMiscellaneous
}

// KeywordRule matches items containing a word that starts with one of the
// keywords, case-insensitively. "analy" matches "analysis"; "text" does not
// match "context".
func KeywordRule(label string, keywords ...string) Rule {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	re := regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)`)
	return Rule{Label: label, Match: re.MatchString}
}

// DefaultRules is the built-in bucket table, in priority order.
var DefaultRules = Rules{
	KeywordRule(LabelQuickWins,
		"call", "text", "email", "reply", "respond", "send", "pay", "buy", "order",
		"book", "confirm", "message", "sign", "renew", "cancel", "return"),
	KeywordRule(LabelPrep,
		"plan", "prep", "schedule", "organiz", "research", "outline", "list",
		"review", "calendar", "agenda", "pack", "budget"),
	KeywordRule(LabelDeepWork,
		"write", "report", "draft", "design", "build", "code", "study", "analy",
		"essay", "presentation", "project", "refactor", "learn"),
	KeywordRule(LabelPersonalCare,
		"exercise", "workout", "gym", "walk", "run", "sleep", "nap", "meditat",
		"doctor", "dentist", "therapy", "shower", "stretch", "cook", "meal",
		"water", "rest", "yoga"),
}
