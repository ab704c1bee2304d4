package llm

import (
	"fmt"
	"strings"
)

const suggestionSystem = `You are a warm, non-judgmental productivity coach for people who struggle to start tasks.
When someone keeps skipping a reminder, propose a smaller first step and a gentler reminder cadence.
Keep the message under 40 words, speak directly to the user, never shame them.
Return ONLY a JSON object with exactly these keys:
{"message": "string", "suggestedStartStep": "string", "reminderIntervalMinutes": number}`

// SuggestionInput is what the suggestion prompt needs to know about a task.
type SuggestionInput struct {
	TaskDescription         string
	PreviousIntervalMinutes int
	ConsecutiveSkips        int
	RecentInteractions      []string // "action @ timestamp"
}

// SuggestionPrompt builds the messages asking for a reminder adjustment.
func SuggestionPrompt(in SuggestionInput) []Message {
	recent := "none recorded"
	if len(in.RecentInteractions) > 0 {
		recent = strings.Join(in.RecentInteractions, ", ")
	}

	user := fmt.Sprintf(`Task: %s
Current reminder interval: %d minutes
Consecutive skips: %d
Recent interactions (oldest first): %s

Suggest a tiny first step that takes under five minutes and a new reminder interval in minutes.`,
		in.TaskDescription, in.PreviousIntervalMinutes, in.ConsecutiveSkips, recent)

	return []Message{
		{Role: "system", Content: suggestionSystem},
		{Role: "user", Content: user},
	}
}

const brainDumpSystem = `You help people turn a messy brain dump into a short plan.
Group the items into a few actionable categories such as "2-minute Wins", "Prep & Planning", "Deep Work", "Personal Care" or "Miscellaneous".
Use every item exactly once and keep the item text unchanged.
Return ONLY a JSON object with exactly these keys:
{"categories": {"Category name": ["item", "..."]}, "focusRecommendation": "string", "summary": "string"}`

// BrainDumpPrompt builds the messages asking for a categorized brain dump.
func BrainDumpPrompt(items []string) []Message {
	var b strings.Builder
	b.WriteString("Brain dump items:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	b.WriteString("\nRecommend one item to focus on first.")

	return []Message{
		{Role: "system", Content: brainDumpSystem},
		{Role: "user", Content: b.String()},
	}
}
