package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/nudge/internal/engine"
	"github.com/lazypower/nudge/internal/llm"
	"go.uber.org/zap"
)

// InteractionRequest is the body of POST /api/tasks/{taskID}/interactions.
type InteractionRequest struct {
	Action        string         `json:"action"`
	Timestamp     string         `json:"timestamp,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	ForceFallback bool           `json:"forceFallback,omitempty"`
}

// InteractionResponse carries the suggestion, or null when none was due.
type InteractionResponse struct {
	Suggestion *engine.Suggestion `json:"suggestion"`
}

// BrainDumpRequest is the body of POST /api/braindump.
type BrainDumpRequest struct {
	Items         []string `json:"items"`
	ForceFallback bool     `json:"forceFallback,omitempty"`
}

// CredentialsRequest is the body of PUT /api/credentials.
type CredentialsRequest struct {
	APIKey string `json:"apiKey"`
}

// CompleteRequest is the body of POST /api/complete.
type CompleteRequest struct {
	Messages        []llm.Message `json:"messages"`
	Model           string        `json:"model,omitempty"`
	Temperature     *float64      `json:"temperature,omitempty"`
	MaxOutputTokens int           `json:"maxOutputTokens,omitempty"`
}

// timestampLayouts are tried in order. Layouts without a zone read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. An empty string yields the
// zero time, which the engine replaces with the current time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// taskIDParam returns the decoded {taskID}. chi matches on RawPath when
// the request path carries escapes such as %2F, leaving the param encoded.
func taskIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "taskID")
	if r.URL.RawPath == "" {
		return id, nil
	}
	return url.PathUnescape(id)
}

func (s *Server) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	taskID, err := taskIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	var req InteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ts, err := ParseTimestamp(req.Timestamp)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := engine.Interaction{
		TaskID:        taskID,
		Action:        req.Action,
		Timestamp:     ts,
		Context:       req.Context,
		ForceFallback: req.ForceFallback,
	}

	sg, err := s.engine.RecordInteraction(r.Context(), in)
	if errors.Is(err, engine.ErrInvalidArgument) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, InteractionResponse{Suggestion: sg})
}

func (s *Server) handleLastSuggestion(w http.ResponseWriter, r *http.Request) {
	taskID, err := taskIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	sg := s.engine.LastSuggestion(taskID)
	if sg == nil {
		writeError(w, http.StatusNotFound, "no suggestion for task")
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

func (s *Server) handleResetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := taskIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	s.engine.ResetTaskHistory(taskID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBrainDump(w http.ResponseWriter, r *http.Request) {
	var req BrainDumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	res := s.engine.OrganizeBrainDump(r.Context(), req.Items, engine.OrganizeOptions{
		ForceFallback: req.ForceFallback,
	})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"configured": s.engine.APIKey() != "",
	})
}

func (s *Server) handlePutCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	s.engine.SetAPIKey(strings.TrimSpace(req.APIKey))
	writeJSON(w, http.StatusOK, map[string]bool{
		"configured": s.engine.APIKey() != "",
	})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages required")
		return
	}

	text, err := s.engine.RequestCompletion(r.Context(), llm.Request{
		Messages:        req.Messages,
		Model:           req.Model,
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxOutputTokens,
	})
	if err != nil {
		s.log.Warn("completion failed", zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, engine.ErrNoCompleter) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
