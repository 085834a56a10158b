package token

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	apperrors "github.com/safetrail/go-identity-server/internal/errors"
)

// ErrTokenInvalid is the single error returned for every verification
// failure. Callers never learn whether the signature, shape, or expiry
// was at fault.
var ErrTokenInvalid = errors.Wrap(apperrors.ErrUnauthorized, "invalid or expired token")

// Claims is the identity assertion carried by a session token.
type Claims struct {
	UserID    string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer mints and verifies HS256 session tokens. The signing key is
// process-wide configuration loaded once at startup; rotating it
// invalidates every outstanding token, which is the only revocation
// mechanism this service has. Verification is pure - no I/O - so it is
// cheap to run on every protected request.
type Issuer struct {
	key      []byte
	lifetime time.Duration
	nowTime  func() time.Time
}

type IssuerOption func(*Issuer)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowTime = nowFunc
	}
}

func NewIssuer(key []byte, lifetime time.Duration, options ...IssuerOption) (*Issuer, error) {
	if len(key) == 0 {
		return nil, errors.New("[NewIssuer] signing key is required")
	}
	if lifetime <= 0 {
		return nil, errors.New("[NewIssuer] token lifetime must be positive")
	}
	issuer := &Issuer{
		key:      key,
		lifetime: lifetime,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(issuer)
	}
	return issuer, nil
}

// Lifetime reports the fixed token validity window.
func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}

// Issue produces a signed token asserting the given identity.
func (i *Issuer) Issue(userID, email string) (string, error) {
	now := i.nowTime()
	claims := jwtlib.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(i.lifetime).Unix(),
		"jti":   uuid.New().String(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", errors.Wrap(err, "[Issuer.Issue] SignedString")
	}
	return signed, nil
}

// Verify validates the signature and expiry of a raw token and returns
// its claims. Any failure is reported uniformly as ErrTokenInvalid.
func (i *Issuer) Verify(rawToken string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(
		rawToken,
		jwtlib.MapClaims{},
		func(t *jwtlib.Token) (interface{}, error) { return i.key, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(i.nowTime),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	mapClaims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	sub, _ := mapClaims["sub"].(string)
	email, _ := mapClaims["email"].(string)
	iat, _ := mapClaims["iat"].(float64)
	exp, _ := mapClaims["exp"].(float64)
	if sub == "" {
		return nil, ErrTokenInvalid
	}

	return &Claims{
		UserID:    sub,
		Email:     email,
		IssuedAt:  time.Unix(int64(iat), 0),
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}
