package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lazypower/nudge/internal/llm"
	"github.com/lazypower/nudge/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrInvalidArgument is returned for structurally invalid calls.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoCompleter is returned by RequestCompletion when no client is configured.
	ErrNoCompleter = errors.New("completion client not configured")
)

// Engine is the public façade: it owns one GlobalState, hydrated from its
// store when constructed and written back after every mutation.
type Engine struct {
	kv     store.KV
	creds  *store.Credentials
	llm    llm.Completer
	online func() bool
	now    func() time.Time
	log    *zap.Logger
	rules  Rules

	mu    sync.Mutex // guards state
	state *GlobalState

	locksMu sync.Mutex
	locks   map[string]*taskLock
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithOnline reports whether the network is usable. When it returns false
// the heuristic paths are used without attempting a completion.
func WithOnline(online func() bool) Option {
	return func(e *Engine) { e.online = online }
}

// WithCredentials overrides the credential slot, which otherwise lives in
// the same store as the state.
func WithCredentials(c *store.Credentials) Option {
	return func(e *Engine) { e.creds = c }
}

// WithRules replaces the brain dump categorization rules.
func WithRules(r Rules) Option {
	return func(e *Engine) { e.rules = r }
}

// New creates an Engine over kv. completer may be nil, in which case every
// suggestion and brain dump takes the heuristic path.
func New(kv store.KV, completer llm.Completer, opts ...Option) *Engine {
	e := &Engine{
		kv:    kv,
		llm:   completer,
		now:   time.Now,
		log:   zap.NewNop(),
		rules: DefaultRules,
		locks: make(map[string]*taskLock),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.creds == nil {
		e.creds = store.NewCredentials(kv)
	}
	e.state = e.hydrate()
	return e
}

func (e *Engine) hydrate() *GlobalState {
	st := &GlobalState{}
	if err := store.LoadJSON(e.kv, store.StateKey, st); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.log.Warn("state unreadable, starting fresh", zap.Error(err))
		}
		return newState()
	}
	st.normalize()
	return st
}

// persistLocked writes the whole state back. Failures are logged and
// otherwise ignored. Caller holds e.mu.
func (e *Engine) persistLocked() {
	if err := store.SaveJSON(e.kv, store.StateKey, e.state); err != nil {
		e.log.Warn("persist state", zap.Error(err))
	}
}

func (e *Engine) isOnline() bool {
	if e.llm == nil {
		return false
	}
	if e.online == nil {
		return true
	}
	return e.online()
}

// SetAPIKey stores the completion-service key; an empty key clears it.
func (e *Engine) SetAPIKey(key string) {
	if err := e.creds.SetAPIKey(key); err != nil {
		e.log.Warn("store api key", zap.Error(err))
	}
}

// APIKey returns the stored key, or "" when none is set.
func (e *Engine) APIKey() string {
	return e.creds.APIKey()
}

// LastSuggestion returns a copy of the most recent suggestion for taskID,
// or nil.
func (e *Engine) LastSuggestion(taskID string) *Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.state.LastSuggestion[taskID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// ResetTaskHistory forgets the task and its last suggestion. Unknown ids
// are a no-op.
func (e *Engine) ResetTaskHistory(taskID string) {
	unlock := e.lockTask(taskID)
	defer unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	_, hasTask := e.state.Tasks[taskID]
	_, hasSuggestion := e.state.LastSuggestion[taskID]
	if !hasTask && !hasSuggestion {
		return
	}
	delete(e.state.Tasks, taskID)
	delete(e.state.LastSuggestion, taskID)
	e.persistLocked()
	e.log.Info("task reset", zap.String("task_id", taskID))
}

// State returns a deep snapshot; mutating it does not affect the engine.
func (e *Engine) State() GlobalState {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, err := e.state.clone()
	if err != nil {
		e.log.Error("snapshot state", zap.Error(err))
		return *newState()
	}
	return snap
}

// RequestCompletion passes a bespoke request straight to the completion
// client. Errors are returned as-is.
func (e *Engine) RequestCompletion(ctx context.Context, req llm.Request) (string, error) {
	if e.llm == nil {
		return "", ErrNoCompleter
	}
	return e.llm.Complete(ctx, req)
}

type taskLock struct {
	mu   sync.Mutex
	refs int
}

// lockTask serializes work on one task id and returns the unlock func.
// Entries are dropped once no caller holds or waits on them.
func (e *Engine) lockTask(taskID string) func() {
	e.locksMu.Lock()
	l, ok := e.locks[taskID]
	if !ok {
		l = &taskLock{}
		e.locks[taskID] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, taskID)
		}
		e.locksMu.Unlock()
	}
}
