package collab

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"mender/internal/config"
	"mender/internal/logging"
)

// GeminiCompleter completes prompts with Google's Gemini API.
type GeminiCompleter struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiCompleter creates a Gemini-backed completer.
func NewGeminiCompleter(ctx context.Context, cfg config.LLMConfig) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultModel("gemini")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiCompleter{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

// CompleteWithSystem sends one system+user prompt and returns the text reply.
func (g *GeminiCompleter) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	logging.CollabDebug("gemini request: model=%s, prompt=%d bytes", g.model, len(userPrompt))
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("Gemini returned no text")
	}
	return text, nil
}
