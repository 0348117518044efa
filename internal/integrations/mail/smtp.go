// Package mail sends outbound email notifications.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/config"
)

// Mailer sends plain text email.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	send   sendFunc
	logger *zap.Logger
}

// NewMailer returns an SMTP mailer, or a logging no-op when SMTP is not configured.
func NewMailer(cfg config.SMTPConfig, logger *zap.Logger) Mailer {
	if !cfg.Configured() {
		return &noopMailer{logger: logger}
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail, logger: logger}
}

// Send delivers the message. ctx is only checked before dialing; net/smtp has no context support.
func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}
	from := m.cfg.From
	if from == "" {
		from = m.cfg.User
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, from, to, BuildMessage(from, to, subject, body, time.Now())); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	m.logger.Debug("email sent", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

// BuildMessage renders RFC 5322 headers and body.
func BuildMessage(from string, to []string, subject, body string, at time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("Date: " + at.UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

type noopMailer struct {
	logger *zap.Logger
}

func (m *noopMailer) Send(_ context.Context, to []string, subject, _ string) error {
	m.logger.Debug("smtp not configured; email skipped", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}
