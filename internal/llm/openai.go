package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const openAIResponsesAPI = "https://api.openai.com/v1/responses"

// OpenAI calls an OpenAI-style Responses endpoint.
type OpenAI struct {
	endpoint string
	keys     KeySource
	defaults Defaults
	client   *http.Client
}

// NewOpenAI creates a Responses API client. No timeout is applied; callers
// bound each request through ctx.
func NewOpenAI(endpoint string, keys KeySource, d Defaults) *OpenAI {
	return &OpenAI{
		endpoint: endpoint,
		keys:     keys,
		defaults: d,
		client:   &http.Client{},
	}
}

// Complete sends one request and returns the trimmed answer text.
func (o *OpenAI) Complete(ctx context.Context, r Request) (string, error) {
	key := apiKey(o.keys)
	if key == "" {
		return "", ErrMissingCredential
	}

	body, err := o.requestBody(r)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newRequestError(resp.StatusCode, gjson.GetBytes(respBody, "error.message").String())
	}

	return textAt(respBody, "output.0.content.0.text")
}

func (o *OpenAI) requestBody(r Request) ([]byte, error) {
	model, temperature, maxTokens := o.defaults.resolve(r)
	messages := r.Messages
	if messages == nil {
		messages = []Message{}
	}

	body := []byte(`{}`)
	var err error
	for _, field := range []struct {
		path  string
		value any
	}{
		{"model", model},
		{"temperature", temperature},
		{"max_output_tokens", maxTokens},
		{"input", messages},
	} {
		body, err = sjson.SetBytes(body, field.path, field.value)
		if err != nil {
			return nil, fmt.Errorf("build request %s: %w", field.path, err)
		}
	}
	return body, nil
}

// textAt extracts a non-blank string at path from a JSON response body.
func textAt(body []byte, path string) (string, error) {
	res := gjson.GetBytes(body, path)
	if !res.Exists() || res.Type != gjson.String {
		return "", fmt.Errorf("%w: no text at %s", ErrMalformedResponse, path)
	}
	text := strings.TrimSpace(res.Str)
	if text == "" {
		return "", fmt.Errorf("%w: blank text", ErrMalformedResponse)
	}
	return text, nil
}
