package notification

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strconv"
	"strings"

	"maintenance-monitor-backend/config"
)

// ErrNotConfigured is returned by a channel that has no endpoint configured.
var ErrNotConfigured = errors.New("notification channel not configured")

// Mail is an HTML e-mail.
type Mail struct {
	To      []string
	Subject string
	HTML    string
}

// Mailer delivers e-mail.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	cfg      config.SMTPConfig
	sendMail sendMailFunc
}

// NewSMTPMailer creates a mailer for the configured relay.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, sendMail: smtp.SendMail}
}

// Send delivers the mail to every recipient in one SMTP transaction.
func (m *SMTPMailer) Send(ctx context.Context, mail Mail) error {
	if m.cfg.Host == "" {
		return ErrNotConfigured
	}
	if len(mail.To) == 0 {
		return errors.New("mail has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)
	if err := m.sendMail(addr, auth, m.cfg.From, mail.To, buildMessage(m.cfg.From, mail)); err != nil {
		return fmt.Errorf("smtp delivery to %v failed: %w", mail.To, err)
	}
	return nil
}

func buildMessage(from string, mail Mail) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(mail.To, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", mail.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(mail.HTML)
	return []byte(b.String())
}
