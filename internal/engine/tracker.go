package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Interaction is one reminder response reported by the host.
type Interaction struct {
	TaskID    string
	Action    string
	Timestamp time.Time      // zero means now
	Context   map[string]any // opaque; see suggestion context keys
	// OnSuggestion, when set, is called with any generated suggestion
	// before RecordInteraction returns.
	OnSuggestion  func(Suggestion)
	ForceFallback bool
}

// InteractionSummary is what the suggestion generator sees after a record.
type InteractionSummary struct {
	TaskID             string
	ConsecutiveSkips   int
	RecentInteractions []InteractionEntry
	Context            map[string]any
}

// RecordInteraction records an interaction and, when the task has been
// skipped often enough and the throttle window has passed, generates a
// suggestion. It returns nil when no suggestion is due. Completion failures
// never surface here; only an empty task id or action is an error.
func (e *Engine) RecordInteraction(ctx context.Context, in Interaction) (*Suggestion, error) {
	taskID := strings.TrimSpace(in.TaskID)
	action := strings.TrimSpace(in.Action)
	if taskID == "" {
		return nil, fmt.Errorf("%w: taskId is required", ErrInvalidArgument)
	}
	if action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidArgument)
	}

	unlock := e.lockTask(taskID)
	defer unlock()

	summary, due := e.record(taskID, action, in.Timestamp, in.Context)
	if !due {
		return nil, nil
	}

	s := e.generate(ctx, summary, in.ForceFallback)
	e.storeSuggestion(s)
	if in.OnSuggestion != nil {
		in.OnSuggestion(*s)
	}
	return s, nil
}

// record applies one interaction to the task state, persists, and reports
// whether a suggestion is due.
func (e *Engine) record(taskID, action string, ts time.Time, rawCtx map[string]any) (InteractionSummary, bool) {
	now := e.now()
	if ts.IsZero() {
		ts = now
	}
	entryCtx, err := jsonContext(rawCtx)
	if err != nil {
		e.log.Warn("interaction context is not JSON-encodable, dropped",
			zap.String("task_id", taskID), zap.Error(err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.state.Tasks[taskID]
	if !ok {
		st = &TaskState{History: []InteractionEntry{}}
		e.state.Tasks[taskID] = st
	}

	switch action {
	case ActionSkip:
		st.ConsecutiveSkips++
	case ActionComplete, ActionSnooze:
		st.ConsecutiveSkips = 0
	}

	st.History = append(st.History, InteractionEntry{
		Action:    action,
		Timestamp: ts.Round(0).UTC(),
		Context:   entryCtx,
	})
	if over := len(st.History) - maxHistory; over > 0 {
		st.History = append([]InteractionEntry(nil), st.History[over:]...)
	}
	e.persistLocked()

	recent := st.History
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}
	summary := InteractionSummary{
		TaskID:             taskID,
		ConsecutiveSkips:   st.ConsecutiveSkips,
		RecentInteractions: append([]InteractionEntry(nil), recent...),
		Context:            entryCtx,
	}

	e.log.Debug("interaction recorded",
		zap.String("task_id", taskID),
		zap.String("action", action),
		zap.Int("consecutive_skips", st.ConsecutiveSkips))

	due := st.ConsecutiveSkips >= skipThreshold &&
		now.UnixMilli()-st.LastSuggestionTimestamp >= throttle.Milliseconds()
	return summary, due
}
