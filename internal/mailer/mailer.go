// Package mailer sends transactional mail over SMTP. When no SMTP host is
// configured it falls back to logging the message, which keeps the
// password-reset flow usable in development.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/securenotes/apiserver/config"
)

// Mailer sends a single HTML mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// New returns an SMTP-backed mailer, or a log-only mailer when no SMTP
// host is configured.
func New(cfg config.SMTPConfig, logger *slog.Logger) Mailer {
	if strings.TrimSpace(cfg.Host) == "" {
		return &LogMailer{logger: logger}
	}
	return &SMTPMailer{cfg: cfg}
}

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, envelopeFrom(m.cfg.From), []string{to}, []byte(msg.String()))
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// LogMailer logs mail instead of sending it.
type LogMailer struct {
	logger *slog.Logger
}

func (m *LogMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.logger.Info("mail not sent, no SMTP host configured",
		"to", to,
		"subject", subject,
		"body", htmlBody,
	)
	return nil
}

// envelopeFrom extracts the bare address from a "Name <addr>" header value.
func envelopeFrom(from string) string {
	if start := strings.LastIndex(from, "<"); start != -1 {
		if end := strings.LastIndex(from, ">"); end > start {
			return from[start+1 : end]
		}
	}
	return from
}
