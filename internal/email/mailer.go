package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/config"
)

// SMTPMailer delivers account emails over SMTP. It satisfies the auth
// service's Mailer interface.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer creates a mailer from the smtp config section
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// SendVerification mails the email verification link and token
func (m *SMTPMailer) SendVerification(_ context.Context, to, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s",
		strings.TrimRight(m.cfg.BaseURL, "/"), url.QueryEscape(token))

	body := fmt.Sprintf(
		"Welcome!\r\n\r\n"+
			"Please verify your email address by opening the link below:\r\n\r\n"+
			"%s\r\n\r\n"+
			"If the link does not work, submit this token to the verification endpoint:\r\n\r\n"+
			"%s\r\n\r\n"+
			"If you did not create this account, you can ignore this message.\r\n",
		link, token)

	if err := m.send(to, "Verify your email address", body); err != nil {
		return fmt.Errorf("sending verification mail: %w", err)
	}
	log.Debug().Str("email", to).Msg("Verification mail sent")
	return nil
}

func (m *SMTPMailer) send(to, subject, body string) error {
	msg := m.buildMessage(to, subject, body)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if m.cfg.StartTLS {
		return m.sendWithStartTLS(addr, auth, to, msg)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
}

func (m *SMTPMailer) sendWithStartTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("connecting to smtp server: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
		return fmt.Errorf("starting tls: %w", err)
	}
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("setting sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("setting recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (m *SMTPMailer) buildMessage(to, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}
