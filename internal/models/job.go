package models

import "time"

const (
	EmailVerification    = "email-verification"
	EmailPasswordReset   = "password-reset"
	EmailPasswordChanged = "password-changed"
)

// EmailJob is queued by the auth service and delivered by the worker pool.
type EmailJob struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	To         string    `json:"to"`
	Token      string    `json:"token,omitempty"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error      string            `json:"error"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Fields     map[string]string `json:"fields,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Path       string            `json:"path,omitempty"`
}
