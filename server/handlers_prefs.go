package server

import (
	"net/http"

	apperrors "github.com/safetrail/go-identity-server/internal/errors"
	"github.com/safetrail/go-identity-server/prefs"
)

func (s *Server) GetPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, apperrors.ErrUnauthorized)
		return
	}

	preferences, err := s.services.Prefs.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preferences)
}

func (s *Server) UpdatePreferencesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, apperrors.ErrUnauthorized)
		return
	}

	var patch prefs.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, err)
		return
	}

	preferences, err := s.services.Prefs.Update(r.Context(), userID, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preferences)
}
