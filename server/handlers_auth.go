package server

import (
	"net/http"

	"github.com/safetrail/go-identity-server/auth"
	apperrors "github.com/safetrail/go-identity-server/internal/errors"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyOTPRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

type pendingResponse struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type sessionResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

// SignupHandler registers a user and kicks off email verification. The
// response carries the pending handle only - no session token exists
// until the one-time code is verified.
func (s *Server) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var params auth.SignupParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, err)
		return
	}

	userID, err := s.services.Auth.Signup(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pendingResponse{
		UserID:  userID,
		Message: "verification code sent",
	})
}

func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var params loginRequest
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, err)
		return
	}

	userID, err := s.services.Auth.Login(r.Context(), params.Email, params.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pendingResponse{
		UserID:  userID,
		Message: "verification code sent",
	})
}

func (s *Server) VerifyOTPHandler(w http.ResponseWriter, r *http.Request) {
	var params verifyOTPRequest
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, err)
		return
	}

	validation := apperrors.NewValidationError()
	if params.UserID == "" {
		validation.Add("user_id", "is required")
	}
	if params.Code == "" {
		validation.Add("code", "is required")
	}
	if validation.HasErrors() {
		writeError(w, validation)
		return
	}

	sessionToken, err := s.services.Auth.VerifyOTP(r.Context(), params.UserID, params.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     sessionToken,
		TokenType: "Bearer",
		ExpiresIn: int64(s.services.Tokens.Lifetime().Seconds()),
	})
}
