// Package provider talks to external chat completion APIs.
package provider

import (
	"context"
	"errors"
	"fmt"

	"codementor-backend/internal/models"
)

const DefaultSystemPrompt = `You are CodementorX, an expert AI assistant specializing in software development, programming, and technology.

Your expertise includes:
- Web Development (Django, React, FastAPI, Node.js, etc.)
- Programming Languages (Python, JavaScript, Java, C++, Go, etc.)
- Database Design and Management
- Cloud Technologies and DevOps
- Software Architecture and Best Practices
- Authentication and Security
- API Development and Integration

Guidelines:
- Provide clear, practical, and accurate technical advice
- Include code examples when helpful
- Explain complex concepts in simple terms
- Focus on best practices and modern approaches
- Be concise but thorough in explanations
- If unsure, acknowledge it
- Always consider security implications in recommendations
`

// PromptContextWindow is how many prior messages reach the model.
const PromptContextWindow = 10

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrEmptyCompletion = errors.New("provider returned no completion")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type Completion struct {
	Content string
	Model   string
	Usage   *models.TokenUsage
}

// Provider is a chat completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
	Models() []models.ModelInfo
}

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// BuildMessages assembles the prompt: system prompt, then the most recent
// PromptContextWindow prior messages, then the new user message.
func BuildMessages(systemPrompt string, history []models.ChatMessage, userMessage string) []Message {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if len(history) > PromptContextWindow {
		history = history[len(history)-PromptContextWindow:]
	}

	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	for _, m := range history {
		msgs = append(msgs, Message{Role: m.Role, Content: m.Content})
	}
	return append(msgs, Message{Role: RoleUser, Content: userMessage})
}
