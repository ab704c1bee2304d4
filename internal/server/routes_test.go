package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/nudge/internal/engine"
	"github.com/lazypower/nudge/internal/llm"
)

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestRecordInteractionTriggersSuggestion(t *testing.T) {
	srv := testServer(t, nil)

	for i := 0; i < 2; i++ {
		w := do(t, srv, "POST", "/api/tasks/taxes/interactions", `{"action":"skip"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
		}
		if strings.TrimSpace(w.Body.String()) != `{"suggestion":null}` {
			t.Errorf("body = %s, want null suggestion", w.Body.String())
		}
	}

	w := do(t, srv, "POST", "/api/tasks/taxes/interactions",
		`{"action":"skip","context":{"reminderIntervalMinutes":60,"baselineStep":"Open the folder"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp InteractionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Suggestion == nil {
		t.Fatal("expected a suggestion after three skips")
	}
	if resp.Suggestion.TaskID != "taxes" {
		t.Errorf("taskId = %q, want taxes", resp.Suggestion.TaskID)
	}
	if got := resp.Suggestion.RecommendedAdjustments.ReminderIntervalMinutes; got != 30 {
		t.Errorf("interval = %d, want 30", got)
	}
	if got := resp.Suggestion.RecommendedAdjustments.SuggestedStartStep; got != "Open the folder" {
		t.Errorf("start step = %q", got)
	}

	w = do(t, srv, "GET", "/api/tasks/taxes/suggestion", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var last engine.Suggestion
	json.Unmarshal(w.Body.Bytes(), &last)
	if last.ID != resp.Suggestion.ID {
		t.Errorf("last suggestion id = %q, want %q", last.ID, resp.Suggestion.ID)
	}
}

func TestRecordInteractionBadRequests(t *testing.T) {
	srv := testServer(t, nil)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"invalid json", "/api/tasks/a/interactions", `{"action":`},
		{"missing action", "/api/tasks/a/interactions", `{}`},
		{"blank task", "/api/tasks/%20/interactions", `{"action":"skip"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, "POST", tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestRecordInteractionTimestamp(t *testing.T) {
	srv := testServer(t, nil)

	w := do(t, srv, "POST", "/api/tasks/a/interactions",
		`{"action":"complete","timestamp":"2025-06-01T10:00:00Z"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	hist := srv.engine.State().Tasks["a"].History
	if len(hist) != 1 || hist[0].Timestamp.Format("2006-01-02T15:04:05Z07:00") != "2025-06-01T10:00:00Z" {
		t.Errorf("history = %+v", hist)
	}
}

func TestRecordInteractionLenientTimestamp(t *testing.T) {
	tests := []struct {
		name string
		ts   string
		want string
	}{
		{"no zone", "2026-03-14T09:00:00", "2026-03-14T09:00:00Z"},
		{"fractional no zone", "2026-03-14T09:00:00.250", "2026-03-14T09:00:00.25Z"},
		{"space separated", "2026-03-14 09:00:00", "2026-03-14T09:00:00Z"},
		{"minutes only", "2026-03-14T09:00", "2026-03-14T09:00:00Z"},
		{"date only", "2026-03-14", "2026-03-14T00:00:00Z"},
		{"offset", "2026-03-14T09:00:00+02:00", "2026-03-14T07:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, nil)
			w := do(t, srv, "POST", "/api/tasks/a/interactions",
				`{"action":"complete","timestamp":"`+tt.ts+`"}`)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
			}
			hist := srv.engine.State().Tasks["a"].History
			if got := hist[0].Timestamp.Format(time.RFC3339Nano); got != tt.want {
				t.Errorf("timestamp = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRecordInteractionBadTimestamp(t *testing.T) {
	srv := testServer(t, nil)

	for _, ts := range []string{`"garbage"`, `"2026-13-01"`, `1718000000`} {
		w := do(t, srv, "POST", "/api/tasks/a/interactions", `{"action":"skip","timestamp":`+ts+`}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("timestamp %s: status = %d, want 400", ts, w.Code)
		}
	}
	if _, ok := srv.engine.State().Tasks["a"]; ok {
		t.Error("rejected interaction was recorded")
	}
}

func TestTaskIDWithSlash(t *testing.T) {
	srv := testServer(t, nil)

	for i := 0; i < 3; i++ {
		w := do(t, srv, "POST", "/api/tasks/home%2Fdishes/interactions", `{"action":"skip"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
		}
	}

	st := srv.engine.State()
	if _, ok := st.Tasks["home/dishes"]; !ok {
		t.Fatalf("tasks = %v, want home/dishes", st.Tasks)
	}
	if _, ok := st.Tasks["home%2Fdishes"]; ok {
		t.Error("task stored under its escaped id")
	}

	w := do(t, srv, "GET", "/api/tasks/home%2Fdishes/suggestion", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var sg engine.Suggestion
	json.Unmarshal(w.Body.Bytes(), &sg)
	if sg.TaskID != "home/dishes" {
		t.Errorf("taskId = %q, want home/dishes", sg.TaskID)
	}

	if w := do(t, srv, "DELETE", "/api/tasks/home%2Fdishes", ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if _, ok := srv.engine.State().Tasks["home/dishes"]; ok {
		t.Error("task still present after reset")
	}
}

func TestTaskIDWithPercent(t *testing.T) {
	srv := testServer(t, nil)

	w := do(t, srv, "POST", "/api/tasks/50%25%20done/interactions", `{"action":"skip"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if _, ok := srv.engine.State().Tasks["50% done"]; !ok {
		t.Errorf("tasks = %v, want \"50%% done\"", srv.engine.State().Tasks)
	}
}

func TestLastSuggestionNotFound(t *testing.T) {
	srv := testServer(t, nil)

	w := do(t, srv, "GET", "/api/tasks/unknown/suggestion", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestResetTask(t *testing.T) {
	srv := testServer(t, nil)
	for i := 0; i < 3; i++ {
		do(t, srv, "POST", "/api/tasks/gym/interactions", `{"action":"skip"}`)
	}

	w := do(t, srv, "DELETE", "/api/tasks/gym", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if w := do(t, srv, "GET", "/api/tasks/gym/suggestion", ""); w.Code != http.StatusNotFound {
		t.Errorf("suggestion after reset: status = %d, want 404", w.Code)
	}
	if _, ok := srv.engine.State().Tasks["gym"]; ok {
		t.Error("task still present after reset")
	}

	// unknown ids are a no-op
	if w := do(t, srv, "DELETE", "/api/tasks/never", ""); w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestBrainDump(t *testing.T) {
	srv := testServer(t, nil)

	w := do(t, srv, "POST", "/api/braindump",
		`{"items":["call mom","write report","nonsense xyz"],"forceFallback":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	// categories keep first-populated order on the wire
	want := `"categories":{"2-minute Wins":["call mom"],"Deep Work":["write report"],"Miscellaneous":["nonsense xyz"]}`
	if !strings.Contains(w.Body.String(), want) {
		t.Errorf("body = %s, want it to contain %s", w.Body.String(), want)
	}

	var res engine.BrainDumpResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Summary != "Organized 3 items into 3 categories" {
		t.Errorf("summary = %q", res.Summary)
	}
	if len(srv.engine.State().BrainDumpHistory) != 1 {
		t.Error("brain dump not recorded")
	}
}

func TestStateEndpoint(t *testing.T) {
	srv := testServer(t, nil)
	do(t, srv, "POST", "/api/tasks/a/interactions", `{"action":"skip","context":{"k":"v"}}`)

	w := do(t, srv, "GET", "/api/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st engine.GlobalState
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Tasks["a"] == nil || st.Tasks["a"].ConsecutiveSkips != 1 {
		t.Errorf("tasks = %+v", st.Tasks)
	}
	if st.Tasks["a"].History[0].Context["k"] != "v" {
		t.Errorf("context not preserved: %+v", st.Tasks["a"].History[0])
	}
}

func TestCredentials(t *testing.T) {
	srv := testServer(t, nil)

	w := do(t, srv, "GET", "/api/credentials", "")
	if strings.TrimSpace(w.Body.String()) != `{"configured":false}` {
		t.Errorf("body = %s", w.Body.String())
	}

	w = do(t, srv, "PUT", "/api/credentials", `{"apiKey":"  sk-secret  "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "sk-secret") {
		t.Error("key echoed back")
	}
	if srv.engine.APIKey() != "sk-secret" {
		t.Errorf("stored key = %q", srv.engine.APIKey())
	}

	w = do(t, srv, "GET", "/api/credentials", "")
	if strings.TrimSpace(w.Body.String()) != `{"configured":true}` {
		t.Errorf("body = %s", w.Body.String())
	}

	do(t, srv, "PUT", "/api/credentials", `{"apiKey":""}`)
	if srv.engine.APIKey() != "" {
		t.Error("key not cleared")
	}
}

func TestComplete(t *testing.T) {
	mock := &llm.MockClient{Text: "hello there"}
	srv := testServer(t, mock)

	w := do(t, srv, "POST", "/api/complete",
		`{"messages":[{"role":"user","content":"hi"}],"model":"m2","temperature":0.1,"maxOutputTokens":50}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if strings.TrimSpace(w.Body.String()) != `{"text":"hello there"}` {
		t.Errorf("body = %s", w.Body.String())
	}

	got := mock.Calls[0]
	if got.Model != "m2" || got.MaxOutputTokens != 50 || got.Temperature == nil || *got.Temperature != 0.1 {
		t.Errorf("request = %+v", got)
	}
	if got.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name       string
		completer  llm.Completer
		body       string
		wantStatus int
	}{
		{"no messages", &llm.MockClient{}, `{"messages":[]}`, http.StatusBadRequest},
		{"invalid json", &llm.MockClient{}, `nope`, http.StatusBadRequest},
		{"upstream failure", &llm.MockClient{Err: &llm.RequestError{StatusCode: 500, Message: "down"}}, `{"messages":[{"role":"user","content":"x"}]}`, http.StatusBadGateway},
		{"missing key", &llm.MockClient{Err: llm.ErrMissingCredential}, `{"messages":[{"role":"user","content":"x"}]}`, http.StatusBadGateway},
		{"no completer", nil, `{"messages":[{"role":"user","content":"x"}]}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, tt.completer)
			w := do(t, srv, "POST", "/api/complete", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestSuggestionDegradesOverHTTP(t *testing.T) {
	srv := testServer(t, &llm.MockClient{Err: errors.New("network unreachable")})

	var resp InteractionResponse
	for i := 0; i < 3; i++ {
		w := do(t, srv, "POST", "/api/tasks/x/interactions", `{"action":"skip"}`)
		json.Unmarshal(w.Body.Bytes(), &resp)
	}
	if resp.Suggestion == nil {
		t.Fatal("expected a suggestion")
	}
	if resp.Suggestion.Source != engine.SourceHeuristic || resp.Suggestion.Error != "network unreachable" {
		t.Errorf("suggestion = %+v", resp.Suggestion)
	}
}
