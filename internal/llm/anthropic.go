package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const anthropicAPI = "https://api.anthropic.com/v1/messages"

// Anthropic calls the Anthropic Messages API directly.
type Anthropic struct {
	url      string
	keys     KeySource
	defaults Defaults
	client   *http.Client
}

// NewAnthropic creates a new Anthropic API client.
func NewAnthropic(keys KeySource, d Defaults) *Anthropic {
	return &Anthropic{
		url:      anthropicAPI,
		keys:     keys,
		defaults: d,
		client:   &http.Client{},
	}
}

// Complete sends the messages to the Anthropic API. System messages are
// joined into the top-level system prompt.
func (a *Anthropic) Complete(ctx context.Context, r Request) (string, error) {
	key := apiKey(a.keys)
	if key == "" {
		return "", ErrMissingCredential
	}
	model, temperature, maxTokens := a.defaults.resolve(r)

	var system []string
	turns := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}

	reqBody := map[string]any{
		"model":       model,
		"max_tokens":  maxTokens,
		"temperature": temperature,
		"messages":    turns,
	}
	if len(system) > 0 {
		reqBody["system"] = strings.Join(system, "\n\n")
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newRequestError(resp.StatusCode, gjson.GetBytes(respBody, "error.message").String())
	}

	return textAt(respBody, "content.0.text")
}
