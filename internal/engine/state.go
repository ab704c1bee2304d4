package engine

import (
	"encoding/json"
	"time"
)

// Interaction actions with counter semantics. Any other non-empty action is
// recorded without touching the skip counter.
const (
	ActionSkip     = "skip"
	ActionComplete = "complete"
	ActionSnooze   = "snooze"
)

const (
	maxHistory    = 50
	recentWindow  = 5
	skipThreshold = 3
	throttle      = time.Hour
)

// InteractionEntry is one recorded reminder interaction. Immutable once recorded.
type InteractionEntry struct {
	Action    string         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Context   map[string]any `json:"context"`
}

// TaskState is the per-task history and skip counter.
type TaskState struct {
	History                 []InteractionEntry `json:"history"`
	ConsecutiveSkips        int                `json:"consecutiveSkips"`
	LastSuggestionTimestamp int64              `json:"lastSuggestionTimestamp"` // epoch ms, 0 = never
}

// Adjustments are the reminder changes a suggestion recommends.
type Adjustments struct {
	SuggestedStartStep      string `json:"suggestedStartStep"`
	ReminderIntervalMinutes int    `json:"reminderIntervalMinutes"`
}

// Suggestion sources.
const (
	SourceHeuristic = "heuristic"
	SourceLLM       = "llm"
)

// ReasonConsecutiveSkips is the only suggestion reason.
const ReasonConsecutiveSkips = "consecutive-skips"

// Suggestion is a generated behavioral nudge for a task.
type Suggestion struct {
	ID                     string      `json:"id"`
	TaskID                 string      `json:"taskId"`
	Reason                 string      `json:"reason"`
	Message                string      `json:"message"`
	RecommendedAdjustments Adjustments `json:"recommendedAdjustments"`
	Source                 string      `json:"source"`
	CreatedAt              int64       `json:"createdAt"`
	RawResponse            string      `json:"rawResponse,omitempty"`
	Error                  string      `json:"error,omitempty"`
}

// BrainDumpRecord is one raw brain dump submission.
type BrainDumpRecord struct {
	ID        string    `json:"id"`
	Items     []string  `json:"items"`
	Timestamp time.Time `json:"timestamp"`
}

// GlobalState is everything the engine persists.
type GlobalState struct {
	Tasks            map[string]*TaskState  `json:"tasks"`
	LastSuggestion   map[string]*Suggestion `json:"lastSuggestion"`
	BrainDumpHistory []BrainDumpRecord      `json:"brainDumpHistory"`
}

func newState() *GlobalState {
	s := &GlobalState{}
	s.normalize()
	return s
}

// normalize fills missing fields field by field, so a stored blob written
// by an older version still yields a complete state.
func (s *GlobalState) normalize() {
	if s.Tasks == nil {
		s.Tasks = make(map[string]*TaskState)
	}
	if s.LastSuggestion == nil {
		s.LastSuggestion = make(map[string]*Suggestion)
	}
	if s.BrainDumpHistory == nil {
		s.BrainDumpHistory = []BrainDumpRecord{}
	}

	for id, ts := range s.Tasks {
		if ts == nil {
			delete(s.Tasks, id)
			continue
		}
		if ts.History == nil {
			ts.History = []InteractionEntry{}
		}
		if len(ts.History) > maxHistory {
			ts.History = append([]InteractionEntry(nil), ts.History[len(ts.History)-maxHistory:]...)
		}
		for i := range ts.History {
			if ts.History[i].Context == nil {
				ts.History[i].Context = map[string]any{}
			}
		}
		if ts.ConsecutiveSkips < 0 {
			ts.ConsecutiveSkips = 0
		}
	}
	for id, sg := range s.LastSuggestion {
		if sg == nil {
			delete(s.LastSuggestion, id)
		}
	}
	for i := range s.BrainDumpHistory {
		if s.BrainDumpHistory[i].Items == nil {
			s.BrainDumpHistory[i].Items = []string{}
		}
	}
}

// clone returns a deep copy. State only ever holds JSON-shaped values, so
// a round trip through encoding/json is lossless.
func (s *GlobalState) clone() (GlobalState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return GlobalState{}, err
	}
	var out GlobalState
	if err := json.Unmarshal(data, &out); err != nil {
		return GlobalState{}, err
	}
	out.normalize()
	return out, nil
}

// jsonContext copies a caller context into its JSON form so the in-memory
// state never aliases caller values and matches what gets persisted.
func jsonContext(ctx map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if len(ctx) == 0 {
		return out, nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}, err
	}
	return out, nil
}
