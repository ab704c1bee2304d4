package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// Ollama calls a local Ollama instance. It needs no credential.
type Ollama struct {
	url      string
	defaults Defaults
	client   *http.Client
}

// NewOllama creates a new Ollama client.
func NewOllama(url string, d Defaults) *Ollama {
	return &Ollama{
		url:      url,
		defaults: d,
		client:   &http.Client{},
	}
}

// Complete sends the messages to Ollama's chat endpoint.
func (o *Ollama) Complete(ctx context.Context, r Request) (string, error) {
	model, temperature, maxTokens := o.defaults.resolve(r)
	reqBody := map[string]any{
		"model":    model,
		"messages": r.Messages,
		"stream":   false,
		"format":   "json",
		"options": map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newRequestError(resp.StatusCode, gjson.GetBytes(respBody, "error").String())
	}

	return textAt(respBody, "message.content")
}
