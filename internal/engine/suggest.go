package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lazypower/nudge/internal/llm"
	"go.uber.org/zap"
)

// Context keys read by the suggestion generator.
const (
	CtxTaskDescription  = "taskDescription"
	CtxBaselineStep     = "baselineStep"
	CtxReminderInterval = "reminderIntervalMinutes"
)

const (
	defaultIntervalMinutes = 45
	minIntervalMinutes     = 15
	maxIntervalMinutes     = 7 * 24 * 60
	defaultStartStep       = "Set a 2-minute timer and do only the very first step."
	defaultLLMMessage      = "This one keeps slipping, and that's okay. Let's shrink the first step and check back a little sooner."
	defaultTaskDescription = "this task"
)

// generate builds a suggestion for a due task. The heuristic answer is
// computed first and used whenever the completion path is skipped or fails.
func (e *Engine) generate(ctx context.Context, sum InteractionSummary, force bool) *Suggestion {
	fallback := heuristicSuggestion(sum)
	if force || !e.isOnline() {
		return fallback
	}

	text, err := e.llm.Complete(ctx, llm.Request{Messages: llm.SuggestionPrompt(suggestionInput(sum))})
	if err != nil {
		e.log.Warn("suggestion completion failed, using heuristic",
			zap.String("task_id", sum.TaskID), zap.Error(err))
		fallback.Error = err.Error()
		return fallback
	}

	s, ok := parseSuggestion(text, fallback)
	if !ok {
		e.log.Warn("suggestion response unparseable, using heuristic",
			zap.String("task_id", sum.TaskID))
		fallback.RawResponse = text
		return fallback
	}
	return s
}

// storeSuggestion records s as the task's latest suggestion and stamps the
// throttle clock.
func (e *Engine) storeSuggestion(s *Suggestion) {
	now := e.now().UnixMilli()
	s.ID = uuid.NewString()
	s.CreatedAt = now

	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *s
	e.state.LastSuggestion[s.TaskID] = &cp
	if st, ok := e.state.Tasks[s.TaskID]; ok {
		st.LastSuggestionTimestamp = now
	}
	e.persistLocked()

	e.log.Info("suggestion generated",
		zap.String("task_id", s.TaskID),
		zap.String("source", s.Source),
		zap.Int("interval_minutes", s.RecommendedAdjustments.ReminderIntervalMinutes))
}

func previousInterval(ctx map[string]any) float64 {
	if n, ok := contextNumber(ctx, CtxReminderInterval); ok {
		return n
	}
	return defaultIntervalMinutes
}

// shrinkInterval halves the interval, rounding half away from zero, and
// never goes below the floor.
func shrinkInterval(prev float64) int {
	return max(minIntervalMinutes, roundMinutes(prev*0.5))
}

// roundMinutes rounds half away from zero, capped at one week.
func roundMinutes(m float64) int {
	if m > maxIntervalMinutes {
		return maxIntervalMinutes
	}
	return int(math.Round(m))
}

func heuristicSuggestion(sum InteractionSummary) *Suggestion {
	step := contextString(sum.Context, CtxBaselineStep)
	if step == "" {
		step = defaultStartStep
	}
	return &Suggestion{
		TaskID: sum.TaskID,
		Reason: ReasonConsecutiveSkips,
		Message: fmt.Sprintf(
			"You've skipped this reminder %d times in a row. Let's make starting easier: try a tiny first step and a shorter check-in.",
			sum.ConsecutiveSkips),
		RecommendedAdjustments: Adjustments{
			SuggestedStartStep:      step,
			ReminderIntervalMinutes: shrinkInterval(previousInterval(sum.Context)),
		},
		Source: SourceHeuristic,
	}
}

func suggestionInput(sum InteractionSummary) llm.SuggestionInput {
	desc := contextString(sum.Context, CtxTaskDescription)
	if desc == "" {
		desc = defaultTaskDescription
	}
	recent := make([]string, 0, len(sum.RecentInteractions))
	for _, it := range sum.RecentInteractions {
		recent = append(recent, it.Action+" @ "+it.Timestamp.Format(time.RFC3339))
	}
	return llm.SuggestionInput{
		TaskDescription:         desc,
		PreviousIntervalMinutes: roundMinutes(previousInterval(sum.Context)),
		ConsecutiveSkips:        sum.ConsecutiveSkips,
		RecentInteractions:      recent,
	}
}

// parseSuggestion fills a suggestion from model output. Fields the model
// omitted or got wrong take the heuristic's values.
func parseSuggestion(text string, fallback *Suggestion) (*Suggestion, bool) {
	obj, ok := extractJSONObject(text)
	if !ok || !obj.IsObject() {
		return nil, false
	}

	s := &Suggestion{
		TaskID:                 fallback.TaskID,
		Reason:                 ReasonConsecutiveSkips,
		Message:                stringField(obj, "message"),
		RecommendedAdjustments: fallback.RecommendedAdjustments,
		Source:                 SourceLLM,
	}
	if s.Message == "" {
		s.Message = defaultLLMMessage
	}
	if step := stringField(obj, "suggestedStartStep"); step != "" {
		s.RecommendedAdjustments.SuggestedStartStep = step
	}
	if n, ok := positiveNumber(obj.Get("reminderIntervalMinutes")); ok {
		s.RecommendedAdjustments.ReminderIntervalMinutes = max(1, roundMinutes(n))
	}
	return s, true
}
