package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	apperrors "github.com/safetrail/go-identity-server/internal/errors"
	"github.com/safetrail/go-identity-server/notify"
	"github.com/safetrail/go-identity-server/otp"
	"github.com/safetrail/go-identity-server/token"
	"github.com/safetrail/go-identity-server/users"
)

// Service is the authentication gateway: it coordinates the credential
// store, password hasher, OTP manager, and session-token issuer to
// implement signup, login, and OTP verification.
//
// Policy notes, applied uniformly:
//   - An OTP is required on every path that can end in a session token,
//     signup included. Email possession is proven before any session
//     exists.
//   - Unknown email and wrong password both come back as Unauthorized so
//     the login endpoint cannot be used to enumerate accounts.
type Service struct {
	repo     users.Repo
	hasher   *users.Hasher
	otp      *otp.Manager
	tokens   *token.Issuer
	notifier notify.Notifier
	log      zerolog.Logger
	nowTime  func() time.Time
}

type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

func NewService(
	repo users.Repo,
	hasher *users.Hasher,
	otpManager *otp.Manager,
	tokenIssuer *token.Issuer,
	notifier notify.Notifier,
	options ...ServiceOption,
) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[NewService] users repo is required")
	}
	if hasher == nil {
		return nil, errors.New("[NewService] password hasher is required")
	}
	if otpManager == nil {
		return nil, errors.New("[NewService] otp manager is required")
	}
	if tokenIssuer == nil {
		return nil, errors.New("[NewService] token issuer is required")
	}
	if notifier == nil {
		return nil, errors.New("[NewService] notifier is required")
	}

	service := &Service{
		repo:     repo,
		hasher:   hasher,
		otp:      otpManager,
		tokens:   tokenIssuer,
		notifier: notifier,
		log:      zerolog.Nop(),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(service)
	}
	return service, nil
}

// Signup registers a new user and sends a one-time code to their email.
// It returns the pending-verification handle (the user ID); no session
// token exists until the code is verified.
func (s *Service) Signup(ctx context.Context, params SignupParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	email := users.NormalizeEmail(params.Email)

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return "", errors.Wrap(apperrors.ErrConflict, "[Service.Signup] email already registered")
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return "", errors.Wrap(err, "[Service.Signup] GetByEmail")
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return "", errors.Wrap(err, "[Service.Signup] Hash")
	}

	user := &users.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		CreatedAt:    s.nowTime(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return "", errors.Wrap(err, "[Service.Signup] Create")
	}

	if err := s.issueAndDispatchCode(ctx, user.ID, user.Email); err != nil {
		return "", err
	}
	return user.ID, nil
}

// Login checks credentials and, when they hold, issues a fresh one-time
// code superseding any in-flight challenge. The caller gets the pending
// handle back and must follow up with VerifyOTP - there is no direct
// password-to-session path.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	validation := apperrors.NewValidationError()
	email = users.NormalizeEmail(email)
	if !users.ValidEmail(email) {
		validation.Add("email", "must be a valid email address")
	}
	if password == "" {
		validation.Add("password", "is required")
	}
	if validation.HasErrors() {
		return "", validation
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			// Collapsed with the wrong-password case; see policy notes.
			return "", errors.Wrap(apperrors.ErrUnauthorized, "[Service.Login] unknown email")
		}
		return "", errors.Wrap(err, "[Service.Login] GetByEmail")
	}

	if !s.hasher.Check(password, user.PasswordHash) {
		return "", errors.Wrap(apperrors.ErrUnauthorized, "[Service.Login] password mismatch")
	}

	if err := s.issueAndDispatchCode(ctx, user.ID, user.Email); err != nil {
		return "", err
	}
	return user.ID, nil
}

// VerifyOTP spends the user's pending challenge and, when the code holds,
// mints the session token in the same step - a correct code is never
// consumed without a credential being issued. All failure causes collapse
// to Unauthorized so the endpoint leaks nothing about why.
func (s *Service) VerifyOTP(ctx context.Context, userID, code string) (string, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return "", errors.Wrap(apperrors.ErrUnauthorized, "[Service.VerifyOTP] unknown user")
		}
		return "", errors.Wrap(err, "[Service.VerifyOTP] GetByID")
	}

	if err := s.otp.Verify(ctx, userID, code); err != nil {
		switch {
		case errors.Is(err, otp.ErrNoChallenge),
			errors.Is(err, otp.ErrChallengeExpired),
			errors.Is(err, otp.ErrCodeMismatch):
			return "", errors.Wrap(apperrors.ErrUnauthorized, "[Service.VerifyOTP] challenge failed")
		default:
			return "", errors.Wrap(err, "[Service.VerifyOTP] Verify")
		}
	}

	sessionToken, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return "", errors.Wrap(err, "[Service.VerifyOTP] Issue")
	}
	return sessionToken, nil
}

// issueAndDispatchCode issues a challenge and emails it. Delivery failure
// is logged, not returned: the code is already stored and stays valid.
func (s *Service) issueAndDispatchCode(ctx context.Context, userID, email string) error {
	code, err := s.otp.Issue(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "[Service.issueAndDispatchCode] Issue")
	}
	if err := s.notifier.SendOneTimeCode(ctx, email, code, s.otp.TTL()); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("one-time code delivery failed")
	}
	return nil
}
