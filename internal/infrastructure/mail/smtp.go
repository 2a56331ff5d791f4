// Package mail delivers mail events consumed from Kafka.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/honeynil/IdentityService/internal/models"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain-text mail through an unauthenticated relay.
type SMTPMailer struct {
	addr string
	from string
	send sendFunc
}

func NewSMTPMailer(addr, from string) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, event models.MailEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(event.To, "\r\n") || strings.ContainsAny(event.Subject, "\r\n") {
		return fmt.Errorf("mail header contains a line break")
	}
	if err := m.send(m.addr, nil, m.from, []string{event.To}, m.render(event)); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", event.To, err)
	}
	return nil
}

func (m *SMTPMailer) render(event models.MailEvent) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", event.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", event.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(event.Body)
	return []byte(b.String())
}

// LogMailer only logs. It is used when no SMTP relay is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, event models.MailEvent) error {
	slog.Info("mail not sent, no SMTP relay configured", "type", event.Type, "user_id", event.UserID, "subject", event.Subject)
	return nil
}
