package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRulesClassify(t *testing.T) {
	tests := []struct {
		item string
		want string
	}{
		{"call mom", LabelQuickWins},
		{"CALL the plumber", LabelQuickWins},
		{"write report", LabelDeepWork},
		{"nonsense xyz", LabelMiscellaneous},
		{"email the report", LabelQuickWins}, // first match wins
		{"plan the project", LabelPrep},
		{"organize garage", LabelPrep},
		{"data analysis", LabelDeepWork},
		{"morning run", LabelPersonalCare},
		{"meditation", LabelPersonalCare},
		{"context switch", LabelMiscellaneous}, // "text" only matches at a word start
		{"", LabelMiscellaneous},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultRules.Classify(tt.item), "item=%q", tt.item)
	}
}

func TestKeywordRuleQuotesMeta(t *testing.T) {
	r := KeywordRule("X", "c++", "a.b")
	assert.True(t, r.Match("learn c++"))
	assert.True(t, r.Match("a.b test"))
	assert.False(t, r.Match("axb"))
}

func TestEmptyRulesFallToMiscellaneous(t *testing.T) {
	assert.Equal(t, LabelMiscellaneous, Rules{}.Classify("call mom"))
}
