package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini calls the Gemini API through the genai SDK.
type Gemini struct {
	keys     KeySource
	defaults Defaults
}

// NewGemini creates a Gemini client. The SDK client is built per call so a
// key changed at runtime is picked up.
func NewGemini(keys KeySource, d Defaults) *Gemini {
	return &Gemini{keys: keys, defaults: d}
}

// Complete sends the messages as a single GenerateContent call.
func (g *Gemini) Complete(ctx context.Context, r Request) (string, error) {
	key := apiKey(g.keys)
	if key == "" {
		return "", ErrMissingCredential
	}
	model, temperature, maxTokens := g.defaults.resolve(r)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create genai client: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(temperature)),
		MaxOutputTokens:  int32(maxTokens),
		ResponseMIMEType: "application/json",
	}
	var system []string
	var contents []*genai.Content
	for _, m := range r.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", &RequestError{Message: err.Error()}
	}

	return geminiText(resp)
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: blank text", ErrMalformedResponse)
	}
	return text, nil
}
