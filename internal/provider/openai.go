package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"resty.dev/v3"

	"codementor-backend/internal/models"
	"codementor-backend/internal/sanitize"
)

var openAIModels = []models.ModelInfo{
	{
		ID:          "gpt-3.5-turbo",
		Name:        "GPT-3.5 Turbo",
		Description: "Fast and efficient model for general conversations",
		MaxTokens:   4096,
		Available:   true,
	},
	{
		ID:          "gpt-4o-mini",
		Name:        "GPT-4o Mini",
		Description: "Efficient and capable model for coding and technical questions",
		MaxTokens:   16384,
		Available:   true,
	},
}

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *models.TokenUsage `json:"usage"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// OpenAI speaks the OpenAI-compatible /chat/completions protocol.
type OpenAI struct {
	client *resty.Client
}

func NewOpenAI(baseURL, apiKey string, timeout time.Duration) *OpenAI {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &OpenAI{client: client}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Models() []models.ModelInfo { return openAIModels }

func (p *OpenAI) Close() error { return p.client.Close() }

func (p *OpenAI) Complete(ctx context.Context, req Request) (*Completion, error) {
	body, err := json.Marshal(openAIChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		msg := resp.String()
		var apiErr openAIErrorResponse
		if json.Unmarshal(resp.Bytes(), &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, &StatusError{
			Provider:   p.Name(),
			StatusCode: resp.StatusCode(),
			Body:       sanitize.Truncate(sanitize.MaskSensitive(msg), 300, "..."),
		}
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(resp.Bytes(), &chatResp); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	model := chatResp.Model
	if model == "" {
		model = req.Model
	}
	return &Completion{
		Content: chatResp.Choices[0].Message.Content,
		Model:   model,
		Usage:   chatResp.Usage,
	}, nil
}
