package middleware

import (
	"encoding/json"
	"net/http"

	"codementor-backend/internal/models"
)

// WriteError writes the standard error body.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:      message,
		Code:       code,
		StatusCode: status,
		RequestID:  r.Header.Get(RequestIDHeader),
		Path:       r.URL.Path,
	})
}
