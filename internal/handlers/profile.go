package handlers

import (
	"net/http"

	"codementor-backend/internal/middleware"
	"codementor-backend/internal/models"
)

func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.GetProfile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequestBody(w, r)
		return
	}

	user, err := h.authService.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequestBody(w, r)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), middleware.GetUserID(r.Context()), req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}
