package auth

import (
	"strings"

	apperrors "github.com/safetrail/go-identity-server/internal/errors"
	"github.com/safetrail/go-identity-server/users"
)

// SignupParams is the input schema for the signup operation.
type SignupParams struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// Validate checks every field and reports all failures at once.
func (p SignupParams) Validate() error {
	validation := apperrors.NewValidationError()

	if !users.ValidEmail(users.NormalizeEmail(p.Email)) {
		validation.Add("email", "must be a valid email address")
	}
	if err := users.ValidatePassword(p.Password); err != nil {
		var fieldErr *apperrors.ValidationError
		if apperrors.As(err, &fieldErr) {
			validation.Add("password", fieldErr.Fields["password"])
		} else {
			validation.Add("password", "is invalid")
		}
	}
	if strings.TrimSpace(p.FirstName) == "" {
		validation.Add("firstname", "is required")
	}
	if strings.TrimSpace(p.LastName) == "" {
		validation.Add("lastname", "is required")
	}

	if validation.HasErrors() {
		return validation
	}
	return nil
}
