package cli

import (
	"context"
	"fmt"

	"github.com/lazypower/nudge/internal/client"
	"github.com/lazypower/nudge/internal/engine"
	"github.com/lazypower/nudge/internal/llm"
	"github.com/lazypower/nudge/internal/server"
	"go.uber.org/zap"
)

// backend is what the task commands need. A running server is used when
// one answers at NUDGE_URL; otherwise the engine runs in-process.
type backend interface {
	RecordInteraction(ctx context.Context, taskID string, in server.InteractionRequest) (*engine.Suggestion, error)
	LastSuggestion(ctx context.Context, taskID string) (*engine.Suggestion, error)
	ResetTaskHistory(ctx context.Context, taskID string) error
	OrganizeBrainDump(ctx context.Context, in server.BrainDumpRequest) (engine.BrainDumpResult, error)
	State(ctx context.Context) (engine.GlobalState, error)
	SetAPIKey(ctx context.Context, key string) error
	KeyConfigured(ctx context.Context) (bool, error)
	Complete(ctx context.Context, in server.CompleteRequest) (string, error)
}

// openBackend returns the backend and a func releasing it.
func openBackend(ctx context.Context) (backend, func(), error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	c := client.FromEnv()
	if c.Healthy(ctx) {
		log.Debug("using running server", zap.String("url", c.URL()))
		return c, func() { log.Sync() }, nil
	}

	eng, db, err := openEngine(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		db.Close()
		log.Sync()
	}
	return &localBackend{eng: eng}, release, nil
}

// localBackend adapts an in-process engine to backend.
type localBackend struct {
	eng *engine.Engine
}

func (b *localBackend) RecordInteraction(ctx context.Context, taskID string, in server.InteractionRequest) (*engine.Suggestion, error) {
	ts, err := server.ParseTimestamp(in.Timestamp)
	if err != nil {
		return nil, err
	}
	return b.eng.RecordInteraction(ctx, engine.Interaction{
		TaskID:        taskID,
		Action:        in.Action,
		Timestamp:     ts,
		Context:       in.Context,
		ForceFallback: in.ForceFallback,
	})
}

func (b *localBackend) LastSuggestion(_ context.Context, taskID string) (*engine.Suggestion, error) {
	return b.eng.LastSuggestion(taskID), nil
}

func (b *localBackend) ResetTaskHistory(_ context.Context, taskID string) error {
	b.eng.ResetTaskHistory(taskID)
	return nil
}

func (b *localBackend) OrganizeBrainDump(ctx context.Context, in server.BrainDumpRequest) (engine.BrainDumpResult, error) {
	return b.eng.OrganizeBrainDump(ctx, in.Items, engine.OrganizeOptions{ForceFallback: in.ForceFallback}), nil
}

func (b *localBackend) State(context.Context) (engine.GlobalState, error) {
	return b.eng.State(), nil
}

func (b *localBackend) SetAPIKey(_ context.Context, key string) error {
	b.eng.SetAPIKey(key)
	if key != "" && b.eng.APIKey() != key {
		return fmt.Errorf("api key was not stored")
	}
	return nil
}

func (b *localBackend) KeyConfigured(context.Context) (bool, error) {
	return b.eng.APIKey() != "", nil
}

func (b *localBackend) Complete(ctx context.Context, in server.CompleteRequest) (string, error) {
	return b.eng.RequestCompletion(ctx, llm.Request{
		Messages:        in.Messages,
		Model:           in.Model,
		Temperature:     in.Temperature,
		MaxOutputTokens: in.MaxOutputTokens,
	})
}
