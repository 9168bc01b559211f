package models

import "time"

// ChatMessage is one prior turn supplied by the client. It is never stored.
type ChatMessage struct {
	Role      string         `json:"role" validate:"required,oneof=user assistant system"`
	Content   string         `json:"content" validate:"required,max=10000"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ChatRequest is the payload for the message and continue endpoints.
// Temperature and MaxTokens are pointers so an explicit zero is kept apart
// from an absent value.
type ChatRequest struct {
	Message        string        `json:"message" validate:"required,max=10000"`
	ConversationID string        `json:"conversation_id,omitempty" validate:"omitempty,max=100"`
	Context        []ChatMessage `json:"context" validate:"dive"`
	Model          string        `json:"model,omitempty" validate:"omitempty,max=100"`
	Temperature    *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens      *int          `json:"max_tokens,omitempty" validate:"omitempty,gte=1,lte=4000"`
	SystemPrompt   string        `json:"system_prompt,omitempty" validate:"omitempty,max=10000"`
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	Message        string         `json:"message"`
	ConversationID string         `json:"conversation_id"`
	Timestamp      time.Time      `json:"timestamp"`
	ModelUsed      string         `json:"model_used"`
	TokenUsage     *TokenUsage    `json:"token_usage"`
	Metadata       map[string]any `json:"metadata"`
}

type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxTokens   int    `json:"max_tokens"`
	Available   bool   `json:"available"`
}

type ModelsResponse struct {
	Models       []ModelInfo `json:"models"`
	DefaultModel string      `json:"default_model"`
}

// ChatStats is the fixed stats payload; conversation history lives on the client.
type ChatStats struct {
	UserID             int64   `json:"user_id"`
	TotalConversations int     `json:"total_conversations"`
	TotalMessages      int     `json:"total_messages"`
	RecentConversation *string `json:"recent_conversation"`
	StorageType        string  `json:"storage_type"`
	Note               string  `json:"note"`
}

type ConversationDeleted struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Note           string `json:"note"`
}
