package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"codementor-backend/internal/middleware"
	"codementor-backend/internal/models"
	"codementor-backend/internal/services"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("empty request body")

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a single JSON object from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func errorResp(status int, code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error:      message,
		Code:       code,
		StatusCode: status,
		RequestID:  r.Header.Get(middleware.RequestIDHeader),
		Path:       r.URL.Path,
	}
}

func errorRespWithFields(status int, code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	resp := errorResp(status, code, message, r)
	resp.Fields = fields
	return resp
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResp(status, code, message, r))
}

func badRequestBody(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
}

func handleServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var (
		validationErr   *services.ValidationError
		conflictErr     *services.ConflictError
		notFoundErr     *services.NotFoundError
		unauthorizedErr *services.UnauthorizedError
		forbiddenErr    *services.ForbiddenError
		rateLimitErr    *services.RateLimitError
		upstreamErr     *services.UpstreamError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields(http.StatusBadRequest, "VALIDATION_ERROR", validationErr.Message(), validationErr.Fields, r))
	case errors.As(err, &conflictErr):
		writeError(w, r, http.StatusConflict, "CONFLICT", conflictErr.Message)
	case errors.As(err, &notFoundErr):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", notFoundErr.Message)
	case errors.As(err, &unauthorizedErr):
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", unauthorizedErr.Message)
	case errors.As(err, &forbiddenErr):
		writeError(w, r, http.StatusForbidden, "FORBIDDEN", forbiddenErr.Message)
	case errors.As(err, &rateLimitErr):
		writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", rateLimitErr.Message)
	case errors.As(err, &upstreamErr):
		// Detail was already logged by the chat service.
		writeError(w, r, http.StatusInternalServerError, "UPSTREAM_PROVIDER_ERROR", "Failed to generate response")
	default:
		logger.Error("unhandled service error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get(middleware.RequestIDHeader)),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	}
}
