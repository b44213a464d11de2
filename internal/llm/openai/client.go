package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"clown-builder-backend/internal/llm"
)

const defaultModel = "gpt-4o-mini"

// Client talks to any OpenAI-compatible chat completions endpoint, including
// Gemini's compatibility layer. A go-openai client is built per call from the
// call's credential; nothing credential-bearing is shared between calls.
type Client struct {
	baseURL string
}

func NewClient(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

func (c *Client) clientFor(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func (c *Client) Generate(ctx context.Context, call llm.Call) (string, error) {
	if strings.TrimSpace(call.APIKey) == "" {
		return "", errors.New("openai: API key required")
	}
	model := strings.TrimSpace(call.Model)
	if model == "" {
		model = defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(call.System) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: call.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: call.Prompt})

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: call.Config.Temperature,
		TopP:        call.Config.TopP,
		MaxTokens:   call.Config.MaxOutputTokens,
	}
	// top_k has no chat-completions equivalent and is dropped.
	if call.Config.JSONResponse {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.clientFor(call.APIKey).CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai api error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
