package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dyncarl8-oss/auto-welcome/internal/apperr"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"go.uber.org/zap"
)

// writeJSON encodes v as the JSON response body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Base().Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes a JSON error body with the given status
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps sentinel errors onto HTTP statuses. Anything unmapped
// is a 500.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, apperr.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrSetupIncomplete):
		writeError(w, http.StatusBadRequest, "Setup is not complete")
	case errors.Is(err, apperr.ErrMissingAvatar):
		writeError(w, http.StatusBadRequest, "Avatar photo not uploaded yet")
	default:
		logger.Base().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
