package analyzer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// Generator turns a prompt into model text.
type Generator interface {
	Generate(ctx context.Context, prompt string, structured bool) (string, error)
}

// GeminiGenerator generates text with Google's Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GenAI client")
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate sends prompt to the model. When structured is set the model is
// asked for a JSON response.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, structured bool) (string, error) {
	temperature := float32(0.9)
	cfg := &genai.GenerateContentConfig{Temperature: &temperature}
	if structured {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", errors.Wrap(err, "GenAI generate failed")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("GenAI returned no text")
	}
	return text, nil
}
