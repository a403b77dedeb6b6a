package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sankofa-edu/sankofa/internal/llm/prompts"
	"github.com/sankofa-edu/sankofa/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// FeedbackResult holds the model's response to a theory answer. Theory
// questions are never auto-scored; this is explanatory feedback only.
type FeedbackResult struct {
	Feedback   string `json:"feedback"`
	Hint       string `json:"hint"`
	Encouraged bool   `json:"encouraged"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
	tone  prompts.Tone
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, tone prompts.Tone) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		tone:  tone,
	}
}

// Ping verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

// TheoryFeedback asks the model to compare a student's free-response answer
// with the reference answer and produce short feedback.
func (c *Client) TheoryFeedback(ctx context.Context, question model.Question, answer string) (*FeedbackResult, error) {
	systemPrompt, err := prompts.FeedbackPrompt(question, c.tone)
	if err != nil {
		return nil, fmt.Errorf("build feedback prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompts.SanitizeAnswer(answer)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM feedback response", "raw", raw)

	var result FeedbackResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	return &result, nil
}
