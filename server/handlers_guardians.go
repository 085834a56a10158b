package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/safetrail/go-identity-server/internal/errors"
	"github.com/safetrail/go-identity-server/users"
)

func (s *Server) ListGuardiansHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, apperrors.ErrUnauthorized)
		return
	}

	guardians, err := s.services.Guardians.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if guardians == nil {
		guardians = []users.Guardian{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"guardians": guardians})
}

func (s *Server) AddGuardianHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, apperrors.ErrUnauthorized)
		return
	}

	var guardian users.Guardian
	if err := decodeJSON(r, &guardian); err != nil {
		writeError(w, err)
		return
	}

	if err := s.services.Guardians.Add(r.Context(), userID, guardian); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "guardian added"})
}

func (s *Server) RemoveGuardianHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, apperrors.ErrUnauthorized)
		return
	}

	email := chi.URLParam(r, "email")
	if err := s.services.Guardians.Remove(r.Context(), userID, email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "guardian removed"})
}

func (s *Server) TriggerAlertHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, apperrors.ErrUnauthorized)
		return
	}

	dispatched, err := s.services.Guardians.TriggerAlert(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"dispatched": dispatched})
}
