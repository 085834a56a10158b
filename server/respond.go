package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/safetrail/go-identity-server/internal/errors"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto stable status classes. Messages
// are fixed per class so no internal detail or secret ever echoes back.
func writeError(w http.ResponseWriter, err error) {
	var fieldErr *apperrors.ValidationError
	if apperrors.As(err, &fieldErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: fieldErr.Fields})
		return
	}

	switch {
	case apperrors.Is(err, apperrors.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed"})
	case apperrors.Is(err, apperrors.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "resource already exists"})
	case apperrors.Is(err, apperrors.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	case apperrors.Is(err, apperrors.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case apperrors.Is(err, apperrors.ErrUpstreamTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "upstream provider timeout"})
	case apperrors.Is(err, apperrors.ErrUpstream):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "upstream provider error"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// decodeJSON parses a request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperrors.NewValidationError().Add("body", "must be valid JSON")
	}
	return nil
}
