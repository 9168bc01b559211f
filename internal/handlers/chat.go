package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"codementor-backend/internal/middleware"
	"codementor-backend/internal/models"
	"codementor-backend/internal/sanitize"
	"codementor-backend/internal/token"
)

type chatService interface {
	GenerateResponse(ctx context.Context, req models.ChatRequest, user *token.Identity) (*models.ChatResponse, error)
	ContinueConversation(ctx context.Context, conversationID string, req models.ChatRequest, user *token.Identity) (*models.ChatResponse, error)
	Models() models.ModelsResponse
}

// ChatHandler serves /api/chat. Conversation history lives in the browser, so
// the conversation routes only keep the API shape the frontend expects.
type ChatHandler struct {
	chat   chatService
	logger *zap.Logger
}

func NewChatHandler(chat chatService, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{chat: chat, logger: logger}
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequestBody(w, r)
		return
	}

	resp, err := h.chat.GenerateResponse(r.Context(), req, middleware.GetIdentity(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) ContinueConversation(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequestBody(w, r)
		return
	}

	resp, err := h.chat.ContinueConversation(r.Context(), chi.URLParam(r, "id"), req, middleware.GetIdentity(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []any{})
}

func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	if !sanitize.ConversationID(chi.URLParam(r, "id")) {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid conversation ID format")
		return
	}
	writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Conversations are managed in localStorage on frontend")
}

func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !sanitize.ConversationID(id) {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid conversation ID format")
		return
	}
	writeJSON(w, http.StatusOK, models.ConversationDeleted{
		Message:        "Conversation deletion handled by frontend localStorage",
		ConversationID: id,
		Note:           "Backend doesn't store conversations in localStorage version",
	})
}

func (h *ChatHandler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chat.Models())
}

func (h *ChatHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ChatStats{
		UserID:             middleware.GetUserID(r.Context()),
		TotalConversations: 0,
		TotalMessages:      0,
		RecentConversation: nil,
		StorageType:        "localStorage",
		Note:               "Detailed stats are managed by frontend localStorage",
	})
}
