package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/pkg/errors"
	"github.com/safetrail/go-identity-server/internal/config"
	apperrors "github.com/safetrail/go-identity-server/internal/errors"
	"github.com/safetrail/go-identity-server/users"
)

const defaultSendTimeout = 10 * time.Second

// SMTPNotifier delivers notifications over SMTP with AUTH PLAIN,
// upgrading to TLS when the server offers STARTTLS.
type SMTPNotifier struct {
	host    string
	port    string
	account string
	auth    smtp.Auth
	timeout time.Duration
}

var _ Notifier = (*SMTPNotifier)(nil)

type SMTPOption func(*SMTPNotifier)

// WithSendTimeout bounds a whole delivery, dial included.
func WithSendTimeout(timeout time.Duration) SMTPOption {
	return func(n *SMTPNotifier) {
		n.timeout = timeout
	}
}

func NewSMTPNotifier(cfg config.EnvConfig, options ...SMTPOption) (*SMTPNotifier, error) {
	if cfg.GetSmtpAccount() == "" || cfg.GetSmtpPassword() == "" {
		return nil, errors.New("[NewSMTPNotifier] SMTP account and password are required")
	}
	n := &SMTPNotifier{
		host:    cfg.GetSmtpHost(),
		port:    cfg.GetSmtpPort(),
		account: cfg.GetSmtpAccount(),
		auth:    smtp.PlainAuth("", cfg.GetSmtpAccount(), cfg.GetSmtpPassword(), cfg.GetSmtpHost()),
		timeout: defaultSendTimeout,
	}
	for _, opt := range options {
		opt(n)
	}
	return n, nil
}

func (n *SMTPNotifier) SendOneTimeCode(ctx context.Context, email, code string, validity time.Duration) error {
	subject := "Your SafeTrail verification code"
	body := fmt.Sprintf(
		"Your verification code is %s. It expires in %d minutes.\r\n"+
			"If you did not request this code, you can ignore this email.\r\n",
		code, int(validity.Minutes()))
	return n.send(ctx, email, subject, body)
}

func (n *SMTPNotifier) SendAlert(ctx context.Context, contact users.Guardian, senderName string) error {
	subject := fmt.Sprintf("SafeTrail alert from %s", senderName)
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\n%s has triggered a safety alert and listed you as a guardian.\r\n"+
			"Please try to reach them as soon as possible.\r\n",
		contact.Name, senderName)
	return n.send(ctx, contact.Email, subject, body)
}

// send delivers one message. The whole exchange - dial, greeting, auth,
// payload - runs against a single deadline, so a stalled server fails
// with UpstreamTimeout instead of hanging the request that triggered the
// delivery.
func (n *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	deadline := time.Now().Add(n.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	addr := net.JoinHostPort(n.host, n.port)
	conn, err := (&net.Dialer{Deadline: deadline}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return smtpError(err, "[SMTPNotifier.send] Dial")
	}
	defer conn.Close()
	if err := conn.SetDeadline(deadline); err != nil {
		return errors.Wrap(err, "[SMTPNotifier.send] SetDeadline")
	}

	client, err := smtp.NewClient(conn, n.host)
	if err != nil {
		return smtpError(err, "[SMTPNotifier.send] NewClient")
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.host}); err != nil {
			return smtpError(err, "[SMTPNotifier.send] StartTLS")
		}
	}
	if err := client.Auth(n.auth); err != nil {
		return smtpError(err, "[SMTPNotifier.send] Auth")
	}
	if err := client.Mail(n.account); err != nil {
		return smtpError(err, "[SMTPNotifier.send] Mail")
	}
	if err := client.Rcpt(to); err != nil {
		return smtpError(err, "[SMTPNotifier.send] Rcpt")
	}

	writer, err := client.Data()
	if err != nil {
		return smtpError(err, "[SMTPNotifier.send] Data")
	}
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s",
		n.account, to, subject, body)
	if _, err := writer.Write([]byte(msg)); err != nil {
		return smtpError(err, "[SMTPNotifier.send] Write")
	}
	if err := writer.Close(); err != nil {
		return smtpError(err, "[SMTPNotifier.send] Close")
	}
	return smtpError(client.Quit(), "[SMTPNotifier.send] Quit")
}

// smtpError classifies a delivery failure: deadline overruns become
// UpstreamTimeout, everything else Upstream.
func smtpError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrapf(apperrors.ErrUpstreamTimeout, "%s: %v", msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrapf(apperrors.ErrUpstreamTimeout, "%s: %v", msg, err)
	}
	return errors.Wrapf(apperrors.ErrUpstream, "%s: %v", msg, err)
}
