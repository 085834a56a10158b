package config

import (
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type SecurityConfig interface {
	GetSigningKey() []byte
	GetSessionTokenExpiry() time.Duration
	GetBcryptCost() int
	GetOTPDigits() int
	GetOTPExpiry() time.Duration
	GetUpstreamTimeout() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetSigningKey returns the HMAC key used for session tokens. Loaded once
// per call from the environment; an empty key is rejected at startup, not
// per request.
func (Security) GetSigningKey() []byte {
	return []byte(GetEnv("JWT_SECRET", ""))
}

func (Security) GetSessionTokenExpiry() time.Duration {
	return 1 * time.Hour
}

func (Security) GetBcryptCost() int {
	cost, err := strconv.Atoi(GetEnv("BCRYPT_COST", strconv.Itoa(bcrypt.DefaultCost)))
	if err != nil {
		return -1 // rejected by startup validation
	}
	return cost
}

func (Security) GetOTPDigits() int {
	return 6
}

func (Security) GetOTPExpiry() time.Duration {
	return 5 * time.Minute
}

func (Security) GetUpstreamTimeout() time.Duration {
	return 10 * time.Second
}
