package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/safetrail/go-identity-server/users"
)

// Notifier delivers one-time codes and guardian alerts. Delivery is
// fire-and-forget from the core's perspective: a failure is logged by the
// caller and never rolls back the state change that triggered it - an
// issued code stays valid even if the email never arrives.
type Notifier interface {
	SendOneTimeCode(ctx context.Context, email, code string, validity time.Duration) error
	SendAlert(ctx context.Context, contact users.Guardian, senderName string) error
}

// LogNotifier writes notifications to the log instead of delivering them.
// Development use only.
type LogNotifier struct {
	log zerolog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendOneTimeCode(_ context.Context, email, code string, validity time.Duration) error {
	n.log.Info().
		Str("to", email).
		Str("code", code).
		Dur("validity", validity).
		Msg("one-time code (log notifier)")
	return nil
}

func (n *LogNotifier) SendAlert(_ context.Context, contact users.Guardian, senderName string) error {
	n.log.Info().
		Str("to", contact.Email).
		Str("guardian", contact.Name).
		Str("sender", senderName).
		Msg("guardian alert (log notifier)")
	return nil
}
