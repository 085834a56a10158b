package users

import (
	"strings"
	"time"
	"unicode"

	apperrors "github.com/safetrail/go-identity-server/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           string    `json:"id,omitempty"`         // Unique identifier for the user
	Email        string    `json:"email,omitempty"`      // Lower-cased, trimmed; unique across users
	PasswordHash string    `json:"-"`                    // Hashed version of the user's password - never serialize
	FirstName    string    `json:"first_name,omitempty"` // First name of the user
	LastName     string    `json:"last_name,omitempty"`  // Last name of the user
	CreatedAt    time.Time `json:"created_at,omitempty"` // Date and time when the user registered
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Challenge is the ephemeral one-time code attached to a user. At most one
// is active per user; any verification attempt clears it.
type Challenge struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenSet is the credential set obtained from the ride provider after a
// completed delegation flow. Overwritten wholesale on re-linking.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty"` // seconds, as reported by the provider
	CapturedAt   time.Time `json:"captured_at"`
}

// Guardian is an emergency contact who receives alerts on the user's behalf.
type Guardian struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Preferences holds the user's privacy and notification settings.
type Preferences struct {
	ShareLiveLocation bool `json:"share_live_location"`
	NotifyOnRideStart bool `json:"notify_on_ride_start"`
	NotifyOnRideEnd   bool `json:"notify_on_ride_end"`
}

// DefaultPreferences applies until the user changes anything.
func DefaultPreferences() *Preferences {
	return &Preferences{
		ShareLiveLocation: true,
		NotifyOnRideStart: true,
		NotifyOnRideEnd:   true,
	}
}

// NormalizeEmail lower-cases and trims an email address. Uniqueness and
// lookups are always on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail is a cheap structural check, not a deliverability check.
func ValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	if strings.Contains(domain, "@") || !strings.Contains(domain, ".") {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n")
}

// ValidatePassword checks the signup password rule: 8 to 72 characters
// (bcrypt's input limit) with at least one digit.
func ValidatePassword(password string) error {
	if len(password) < 8 || len(password) > 72 {
		return apperrors.NewValidationError().
			Add("password", "must be between 8 and 72 characters long")
	}
	for _, char := range password {
		if unicode.IsDigit(char) {
			return nil
		}
	}
	return apperrors.NewValidationError().
		Add("password", "must contain at least one number")
}

// Hasher hashes and verifies passwords with a fixed bcrypt cost. The cost
// is validated once at construction; misconfiguration is fatal at startup
// rather than surfacing per request.
type Hasher struct {
	cost int
}

func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, apperrors.Wrapf(apperrors.ErrInternal, "[NewHasher] bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Hasher{cost: cost}, nil
}

func (h *Hasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	return string(bytes), err
}

// Check reports whether password matches hash. bcrypt's comparison is
// constant-time over the digest.
func (h *Hasher) Check(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
