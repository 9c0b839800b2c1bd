// Package inference sends prompts to an OpenAI-compatible chat endpoint.
package inference

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sashabaranov/go-openai"

	"github.com/qlinetech/qcode/internal/engine"
)

const DefaultModel = openai.GPT4o

var (
	ErrNoAPIKey  = errors.New("no API key configured")
	ErrNoChoices = errors.New("model returned no choices")
)

// Config selects the endpoint and sampling of a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
}

// Client completes structured prompts.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
}

// New creates a client. The key falls back to OPENAI_API_KEY.
func New(cfg Config) (*Client, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	m := cfg.Model
	if m == "" {
		m = DefaultModel
	}
	return &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       m,
		temperature: cfg.Temperature,
	}, nil
}

// Model is the model name requests are sent with.
func (c *Client) Model() string { return c.model }

func toMessages(prompt *engine.AIPrompt) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case engine.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case engine.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return messages
}

// Complete sends prompt and returns the text of the first choice.
func (c *Client) Complete(ctx context.Context, prompt *engine.AIPrompt) (string, error) {
	if prompt == nil || len(prompt.Messages) == 0 {
		return "", engine.ErrEmptyPrompt
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toMessages(prompt),
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion with %s: %w", c.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
