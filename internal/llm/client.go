package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lazypower/nudge/internal/config"
)

var (
	// ErrMissingCredential is returned before any network call when no API key is set.
	ErrMissingCredential = errors.New("completion API key is not set")
	// ErrRequestFailed is wrapped by every *RequestError.
	ErrRequestFailed = errors.New("completion request failed")
	// ErrMalformedResponse means the answer text was absent, non-string or blank.
	ErrMalformedResponse = errors.New("malformed completion response")
)

// RequestError is a non-2xx answer from the completion service.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return ErrRequestFailed }

func newRequestError(status int, serverMessage string) *RequestError {
	msg := strings.TrimSpace(serverMessage)
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}
	return &RequestError{StatusCode: status, Message: msg}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// Request is a single chat-style completion. Zero-valued fields fall back to
// the provider's configured Defaults.
type Request struct {
	Messages        []Message
	Model           string
	Temperature     *float64
	MaxOutputTokens int
}

// Completer is the interface for completion providers. Complete returns the
// trimmed answer text; structured parsing is left to the caller.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// KeySource supplies the API key at call time, so a key set while the
// process runs takes effect on the next request.
type KeySource interface {
	APIKey() string
}

// StaticKey is a fixed key, typically from config or the environment.
type StaticKey string

func (k StaticKey) APIKey() string { return string(k) }

// KeyChain returns the first non-empty key of its sources.
type KeyChain []KeySource

func (c KeyChain) APIKey() string {
	for _, src := range c {
		if src == nil {
			continue
		}
		if k := strings.TrimSpace(src.APIKey()); k != "" {
			return k
		}
	}
	return ""
}

func apiKey(keys KeySource) string {
	if keys == nil {
		return ""
	}
	return strings.TrimSpace(keys.APIKey())
}

// Defaults carries the per-provider request defaults from config.
type Defaults struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

func (d Defaults) resolve(req Request) (model string, temperature float64, maxTokens int) {
	model, temperature, maxTokens = d.Model, d.Temperature, d.MaxOutputTokens
	if req.Model != "" {
		model = req.Model
	}
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if req.MaxOutputTokens > 0 {
		maxTokens = req.MaxOutputTokens
	}
	return model, temperature, maxTokens
}

// NewClient creates a completion client based on the config provider setting.
// stored is consulted before the key from config.
func NewClient(cfg config.LLMConfig, stored KeySource) (Completer, error) {
	keys := KeyChain{stored, StaticKey(cfg.APIKey)}
	d := Defaults{
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
	if d.MaxOutputTokens <= 0 {
		d.MaxOutputTokens = 400
	}

	switch cfg.Provider {
	case "openai", "":
		if d.Model == "" {
			d.Model = "gpt-4o-mini"
		}
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = openAIResponsesAPI
		}
		return NewOpenAI(endpoint, keys, d), nil
	case "anthropic":
		if d.Model == "" {
			d.Model = "claude-haiku-4-5-20251001"
		}
		return NewAnthropic(keys, d), nil
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		if d.Model == "" {
			d.Model = "llama3.2"
		}
		return NewOllama(url, d), nil
	case "gemini":
		if d.Model == "" {
			d.Model = "gemini-2.5-flash"
		}
		return NewGemini(keys, d), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
