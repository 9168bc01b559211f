package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codementor-backend/internal/metrics"
	"codementor-backend/internal/models"
	"codementor-backend/internal/provider"
	"codementor-backend/internal/sanitize"
	"codementor-backend/internal/token"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000

	// DefaultProviderTimeout applies per attempt when none is configured.
	DefaultProviderTimeout = 60 * time.Second

	// MaxContextMessages bounds the client supplied history kept per request.
	MaxContextMessages = 50
)

type ChatOptions struct {
	DefaultModel string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// ChatService forwards one user message plus client supplied context to the
// completion provider. It holds no conversation state.
type ChatService struct {
	provider provider.Provider
	opts     ChatOptions
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
}

func NewChatService(p provider.Provider, opts ChatOptions, logger *zap.Logger, m *metrics.Metrics) *ChatService {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProviderTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		provider: p,
		opts:     opts,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// GenerateResponse validates req, calls the provider and shapes the reply.
// Validation failures return *ValidationError before any provider call;
// provider failures return *UpstreamError.
func (s *ChatService) GenerateResponse(ctx context.Context, req models.ChatRequest, user *token.Identity) (*models.ChatResponse, error) {
	if user == nil {
		return nil, &UnauthorizedError{Message: "authentication required"}
	}
	if err := s.normalize(&req); err != nil {
		return nil, err
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = s.newID()
	}
	model := req.Model
	if model == "" {
		model = s.opts.DefaultModel
	}

	completion, err := s.complete(ctx, provider.Request{
		Model:       model,
		Messages:    provider.BuildMessages(req.SystemPrompt, req.Context, req.Message),
		Temperature: *req.Temperature,
		MaxTokens:   *req.MaxTokens,
	})
	if err != nil {
		s.logger.Error("completion failed",
			zap.String("provider", s.provider.Name()),
			zap.Int64("user_id", user.UserID),
			zap.String("conversation_id", conversationID),
			zap.String("error", sanitize.MaskSensitive(err.Error())),
		)
		return nil, &UpstreamError{Provider: s.provider.Name(), Err: err}
	}

	s.logger.Info("generated response",
		zap.Int64("user_id", user.UserID),
		zap.String("conversation_id", conversationID),
		zap.String("model", model),
		zap.Int("context_messages", len(req.Context)),
	)

	return &models.ChatResponse{
		Message:        completion.Content,
		ConversationID: conversationID,
		Timestamp:      s.now().UTC(),
		ModelUsed:      model,
		TokenUsage:     completion.Usage,
		Metadata: map[string]any{
			"user_id":    user.UserID,
			"user_email": user.Email,
			"stateless":  true,
		},
	}, nil
}

// ContinueConversation is GenerateResponse with the id taken from the path.
// No history is looked up; the client sends it in req.Context.
func (s *ChatService) ContinueConversation(ctx context.Context, conversationID string, req models.ChatRequest, user *token.Identity) (*models.ChatResponse, error) {
	if !sanitize.ConversationID(conversationID) {
		return nil, &ValidationError{Fields: map[string]string{"conversation_id": "Invalid conversation ID format"}}
	}
	req.ConversationID = conversationID
	return s.GenerateResponse(ctx, req, user)
}

// MaxDuration is the longest GenerateResponse can wait on the provider: every
// attempt at the full timeout plus the backoff between attempts.
func (s *ChatService) MaxDuration() time.Duration {
	total := time.Duration(s.opts.MaxRetries+1) * s.opts.Timeout
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		total += s.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	}
	return total
}

func (s *ChatService) Models() models.ModelsResponse {
	return models.ModelsResponse{
		Models:       s.provider.Models(),
		DefaultModel: s.opts.DefaultModel,
	}
}

// normalize trims text, validates, bounds the context and applies defaults.
func (s *ChatService) normalize(req *models.ChatRequest) error {
	req.Message = sanitize.String(req.Message, 0)
	for i := range req.Context {
		req.Context[i].Content = sanitize.String(req.Context[i].Content, 0)
	}

	extra := map[string]string{}
	if req.ConversationID != "" && !sanitize.ConversationID(req.ConversationID) {
		extra["conversation_id"] = "Invalid conversation ID format"
	}
	if err := mergeFields(validateStruct(req), extra); err != nil {
		var verr *ValidationError
		if req.Message == "" && errors.As(err, &verr) {
			verr.Fields["message"] = "Message cannot be empty"
		}
		return err
	}

	// Every supplied message is validated; only the newest are forwarded.
	if len(req.Context) > MaxContextMessages {
		req.Context = req.Context[len(req.Context)-MaxContextMessages:]
	}

	if req.Temperature == nil {
		t := DefaultTemperature
		req.Temperature = &t
	}
	if req.MaxTokens == nil {
		n := DefaultMaxTokens
		req.MaxTokens = &n
	}
	return nil
}

// complete calls the provider under the configured timeout, retrying
// transient failures up to MaxRetries times with exponential backoff.
func (s *ChatService) complete(ctx context.Context, req provider.Request) (*provider.Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		completion, err := s.provider.Complete(callCtx, req)
		cancel()

		if err == nil {
			s.metrics.ProviderCall(s.provider.Name(), "ok", time.Since(start))
			return completion, nil
		}
		s.metrics.ProviderCall(s.provider.Name(), "error", time.Since(start))
		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			break
		}
		s.logger.Warn("retrying completion",
			zap.Int("attempt", attempt+1),
			zap.String("error", sanitize.MaskSensitive(err.Error())),
		)
	}
	return nil, lastErr
}

func retryable(err error) bool {
	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return !errors.Is(err, provider.ErrEmptyCompletion) && !errors.Is(err, context.Canceled)
}
