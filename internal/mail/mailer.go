package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
)

// Mailer dispatches authentication mail. Fire-and-forget from the caller's
// perspective: failures surface as internal errors, never with transport
// detail to the client.
type Mailer interface {
	SendCode(ctx context.Context, email, code string, sessionID uuid.UUID) error
}

// SMTPMailer sends mail over a plain SMTP endpoint.
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPMailer creates a mailer for the given SMTP address. username may be
// empty for unauthenticated relays.
func NewSMTPMailer(addr, from, username, password string) *SMTPMailer {
	m := &SMTPMailer{addr: addr, from: from}
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		m.auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

// SendCode mails the 6-digit code to the user.
func (m *SMTPMailer) SendCode(_ context.Context, email, code string, _ uuid.UUID) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Your verification code\r\n\r\nYour verification code is %s. It expires shortly.\r\n",
		m.from, email, code)
	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("send code mail: %w", err)
	}
	return nil
}

// LogMailer logs instead of sending. Dev mode only; the code itself is never
// logged, only the masked recipient.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) SendCode(_ context.Context, email, _ string, sessionID uuid.UUID) error {
	m.Logger.Info("two-factor code dispatched",
		slog.String("email", MaskEmail(email)),
		slog.String("session_id", sessionID.String()),
	)
	return nil
}

// MaskEmail masks the local part of an address for logging (e.g. a****e@example.com).
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return "****"
	}
	local := email[:at]
	return local[:1] + strings.Repeat("*", len(local)-1) + email[at:]
}
