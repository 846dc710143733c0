package collab

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"mender/internal/config"
	"mender/internal/logging"
)

// OpenAICompleter completes prompts with an OpenAI-compatible chat API.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAICompleter creates an OpenAI-backed completer. cfg.BaseURL points it
// at any compatible endpoint.
func NewOpenAICompleter(cfg config.LLMConfig) *OpenAICompleter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultModel("openai")
	}

	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
	}
}

// CompleteWithSystem sends one system+user prompt and returns the reply.
func (o *OpenAICompleter) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userPrompt})

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: o.temperature,
	}

	logging.CollabDebug("openai request: model=%s, prompt=%d bytes", o.model, len(userPrompt))
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	logging.CollabDebug("openai finish_reason=%s", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
