package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fitsync/platform/internal/domain"
)

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes a JSON error response, detecting domain.AppError and
// domain.FraudBlockedError for status codes.
func RespondError(w http.ResponseWriter, err error) {
	var blocked *domain.FraudBlockedError
	if errors.As(err, &blocked) {
		RespondJSON(w, http.StatusForbidden, map[string]interface{}{
			"code":       "FRAUD_BLOCKED",
			"message":    blocked.Error(),
			"confidence": blocked.Confidence,
			"reasons":    blocked.Reasons,
		})
		return
	}

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		RespondJSON(w, appErr.Status, map[string]string{
			"code":    appErr.Code,
			"message": appErr.Message,
		})
		return
	}
	RespondJSON(w, http.StatusInternalServerError, map[string]string{
		"code":    "INTERNAL_ERROR",
		"message": "internal server error",
	})
}

// DecodeJSON reads and decodes a JSON request body into dst.
func DecodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
