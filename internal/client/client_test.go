package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lazypower/nudge/internal/engine"
	"github.com/lazypower/nudge/internal/llm"
	"github.com/lazypower/nudge/internal/server"
	"github.com/lazypower/nudge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, completer llm.Completer) *Client {
	t.Helper()
	c, _ := testClientEngine(t, completer)
	return c
}

func testClientEngine(t *testing.T, completer llm.Completer) (*Client, *engine.Engine) {
	t.Helper()
	eng := engine.New(store.NewMemoryKV(), completer)
	ts := httptest.NewServer(server.New(eng, nil, "test", nil))
	t.Cleanup(ts.Close)
	return New(ts.URL), eng
}

func TestFromEnv(t *testing.T) {
	t.Setenv("NUDGE_URL", "http://example.test:9999")
	assert.Equal(t, "http://example.test:9999", FromEnv().URL())

	t.Setenv("NUDGE_URL", "")
	assert.Equal(t, defaultServerURL, FromEnv().URL())
}

func TestHealthy(t *testing.T) {
	c := testClient(t, nil)
	assert.True(t, c.Healthy(context.Background()))

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	assert.False(t, New(down.URL).Healthy(context.Background()))
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := testClient(t, nil)

	var s *engine.Suggestion
	for i := 0; i < 3; i++ {
		var err error
		s, err = c.RecordInteraction(ctx, "file taxes", server.InteractionRequest{Action: engine.ActionSkip})
		require.NoError(t, err)
	}
	require.NotNil(t, s)
	assert.Equal(t, "file taxes", s.TaskID)

	last, err := c.LastSuggestion(ctx, "file taxes")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, s.ID, last.ID)

	st, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Tasks["file taxes"].ConsecutiveSkips)

	require.NoError(t, c.ResetTaskHistory(ctx, "file taxes"))
	last, err = c.LastSuggestion(ctx, "file taxes")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestTaskIDsNeedingEscapes(t *testing.T) {
	ctx := context.Background()
	c, eng := testClientEngine(t, nil)

	for _, id := range []string{"home/dishes", "50% done", "a?b#c"} {
		t.Run(id, func(t *testing.T) {
			var s *engine.Suggestion
			for i := 0; i < 3; i++ {
				var err error
				s, err = c.RecordInteraction(ctx, id, server.InteractionRequest{Action: engine.ActionSkip})
				require.NoError(t, err)
			}
			require.NotNil(t, s)
			assert.Equal(t, id, s.TaskID)
			assert.Contains(t, eng.State().Tasks, id)
			assert.NotNil(t, eng.LastSuggestion(id))

			last, err := c.LastSuggestion(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, last)
			assert.Equal(t, s.ID, last.ID)

			require.NoError(t, c.ResetTaskHistory(ctx, id))
			assert.NotContains(t, eng.State().Tasks, id)
		})
	}
}

func TestRecordInteractionTimestamp(t *testing.T) {
	ctx := context.Background()
	c, eng := testClientEngine(t, nil)

	_, err := c.RecordInteraction(ctx, "t", server.InteractionRequest{Action: engine.ActionComplete, Timestamp: "2026-03-14T09:00:00"})
	require.NoError(t, err)
	hist := eng.State().Tasks["t"].History
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Timestamp.Equal(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)), "got %s", hist[0].Timestamp)

	_, err = c.RecordInteraction(ctx, "t", server.InteractionRequest{Action: engine.ActionSkip, Timestamp: "yesterday"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestBrainDump(t *testing.T) {
	c := testClient(t, nil)
	res, err := c.OrganizeBrainDump(context.Background(), server.BrainDumpRequest{
		Items: []string{"call mom", "write report", "nonsense xyz"},
	})
	require.NoError(t, err)
	require.Len(t, res.Categories, 3)
	assert.Equal(t, engine.LabelQuickWins, res.Categories[0].Label)
	assert.Equal(t, engine.LabelMiscellaneous, res.Categories[2].Label)
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	c := testClient(t, nil)

	ok, err := c.KeyConfigured(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetAPIKey(ctx, "sk-1"))
	ok, err = c.KeyConfigured(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStatusErrors(t *testing.T) {
	ctx := context.Background()
	c := testClient(t, &llm.MockClient{Err: &llm.RequestError{StatusCode: 401, Message: "bad key"}})

	_, err := c.RecordInteraction(ctx, "t", server.InteractionRequest{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)

	_, err = c.Complete(ctx, server.CompleteRequest{Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Contains(t, se.Body, "bad key")
}

func TestComplete(t *testing.T) {
	c := testClient(t, &llm.MockClient{Text: "42"})
	text, err := c.Complete(context.Background(), server.CompleteRequest{
		Messages: []llm.Message{{Role: "user", Content: "answer?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", text)
}
