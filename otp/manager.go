package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/safetrail/go-identity-server/users"
)

const (
	defaultCodeDigits   = 6
	defaultChallengeTTL = 5 * time.Minute
)

var (
	ErrNoChallenge      = errors.New("no pending challenge")
	ErrChallengeExpired = errors.New("challenge expired")
	ErrCodeMismatch     = errors.New("code mismatch")
)

// Manager issues and verifies one-time codes. A user has at most one
// pending challenge; issuing overwrites it and any verification attempt,
// success or failure, consumes it.
type Manager struct {
	repo    users.Repo
	digits  int
	ttl     time.Duration
	nowTime func() time.Time
}

type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithDigits sets the code length.
func WithDigits(digits int) ManagerOption {
	return func(m *Manager) {
		m.digits = digits
	}
}

// WithTTL sets how long an issued code stays valid.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

func NewManager(repo users.Repo, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] users repo is required")
	}
	m := &Manager{
		repo:    repo,
		digits:  defaultCodeDigits,
		ttl:     defaultChallengeTTL,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.digits < 4 || m.digits > 10 {
		return nil, errors.Errorf("[NewManager] code digits %d out of range", m.digits)
	}
	if m.ttl <= 0 {
		return nil, errors.New("[NewManager] challenge ttl must be positive")
	}
	return m, nil
}

// TTL reports how long an issued code stays valid, for notification copy.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue generates a fresh code for the user and stores it with its expiry,
// replacing any prior challenge. Two requests racing here serialize at the
// store; last writer wins and only that code verifies.
func (m *Manager) Issue(ctx context.Context, userID string) (string, error) {
	code, err := randomCode(m.digits)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.Issue] randomCode")
	}
	challenge := &users.Challenge{
		Code:      code,
		ExpiresAt: m.nowTime().Add(m.ttl),
	}
	if err := m.repo.SetChallenge(ctx, userID, challenge); err != nil {
		return "", errors.Wrap(err, "[Manager.Issue] SetChallenge")
	}
	return code, nil
}

// Verify checks a submitted code against the user's pending challenge.
// The challenge is removed from the store atomically on lookup, so a
// wrong guess spends it, repeated submissions cannot brute-force the same
// code, and concurrent attempts race for a single winner. Expiry is
// checked against the wall clock at verification time.
func (m *Manager) Verify(ctx context.Context, userID, submittedCode string) error {
	challenge, err := m.repo.ConsumeChallenge(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "[Manager.Verify] ConsumeChallenge")
	}
	if challenge == nil {
		return ErrNoChallenge
	}

	if m.nowTime().After(challenge.ExpiresAt) {
		return ErrChallengeExpired
	}
	if challenge.Code != submittedCode {
		return ErrCodeMismatch
	}
	return nil
}

// randomCode returns a zero-padded numeric code drawn from crypto/rand.
func randomCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
