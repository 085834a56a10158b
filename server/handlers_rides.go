package server

import (
	"net/http"

	apperrors "github.com/safetrail/go-identity-server/internal/errors"
)

// BeginLinkHandler returns the provider authorization URL for the
// authenticated user.
func (s *Server) BeginLinkHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, apperrors.ErrUnauthorized)
		return
	}

	authURL, err := s.services.Rides.BeginLink(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auth_url": authURL})
}

// ProviderCallbackHandler completes the link. The provider redirects the
// browser here without a session; the state query parameter is the only
// binding to a user, which is why this route sits outside RequireAuth.
func (s *Server) ProviderCallbackHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	validation := apperrors.NewValidationError()
	if code == "" {
		validation.Add("code", "is required")
	}
	if state == "" {
		validation.Add("state", "is required")
	}
	if validation.HasErrors() {
		writeError(w, validation)
		return
	}

	if err := s.services.Rides.CompleteLink(r.Context(), code, state); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "provider account linked"})
}

// ProviderProfileHandler proxies the provider profile for the
// authenticated user, returned verbatim.
func (s *Server) ProviderProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, apperrors.ErrUnauthorized)
		return
	}

	profile, err := s.services.Rides.FetchProviderProfile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(profile)
}
