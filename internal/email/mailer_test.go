package email

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexabase-io/nexabase/internal/config"
)

func TestBuildMessage(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{From: "noreply@example.com"})

	msg := string(m.buildMessage("user@example.com", "Hello", "body text"))

	assert.Contains(t, msg, "From: noreply@example.com\r\n")
	assert.Contains(t, msg, "To: user@example.com\r\n")
	assert.Contains(t, msg, "Subject: Hello\r\n")
	assert.Contains(t, msg, "\r\n\r\nbody text")
}
