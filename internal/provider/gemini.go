package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"codementor-backend/internal/models"
)

var geminiModels = []models.ModelInfo{
	{
		ID:          "gemini-2.0-flash",
		Name:        "Gemini 2.0 Flash",
		Description: "Fast multimodal model for everyday coding questions",
		MaxTokens:   8192,
		Available:   true,
	},
	{
		ID:          "gemini-1.5-pro",
		Name:        "Gemini 1.5 Pro",
		Description: "Larger model for in-depth architecture and debugging discussions",
		MaxTokens:   8192,
		Available:   true,
	},
}

// Gemini sends chats through the Google Generative AI SDK. Concurrent calls
// are capped by a slot channel.
type Gemini struct {
	client *genai.Client
	slots  chan struct{}
}

func NewGemini(ctx context.Context, apiKey string, concurrency int) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	slots := make(chan struct{}, concurrency)
	for i := 0; i < concurrency; i++ {
		slots <- struct{}{}
	}
	return &Gemini{client: client, slots: slots}, nil
}

func (p *Gemini) Name() string { return "gemini" }

func (p *Gemini) Models() []models.ModelInfo { return geminiModels }

func (p *Gemini) Close() error { return p.client.Close() }

func (p *Gemini) Complete(ctx context.Context, req Request) (*Completion, error) {
	select {
	case <-p.slots:
		defer func() { p.slots <- struct{}{} }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	system, history, last, err := splitForGemini(req.Messages)
	if err != nil {
		return nil, err
	}

	model := p.client.GenerativeModel(req.Model)
	model.SetTemperature(float32(req.Temperature))
	model.SetMaxOutputTokens(int32(req.MaxTokens))
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return nil, ErrEmptyCompletion
	}

	completion := &Completion{Content: text, Model: req.Model}
	if u := resp.UsageMetadata; u != nil {
		completion.Usage = &models.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return completion, nil
}

// splitForGemini separates the system prompt and maps the remaining turns to
// Gemini roles. The final message must come from the user.
func splitForGemini(msgs []Message) (system string, history []*genai.Content, last string, err error) {
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != RoleUser {
		return "", nil, "", errors.New("gemini: conversation must end with a user message")
	}

	var systemParts []string
	for _, m := range msgs[:len(msgs)-1] {
		switch m.Role {
		case RoleSystem:
			systemParts = append(systemParts, m.Content)
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	return strings.Join(systemParts, "\n\n"), history, msgs[len(msgs)-1].Content, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
