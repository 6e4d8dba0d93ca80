package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/spf13/viper"
)

// Sender delivers a single plain-text notification email. Flows receive
// it as an injected handle so tests can substitute a fake.
type Sender interface {
	Send(to, subject, body string) error
	From() string
}

// SMTPSender sends mail through a configured SMTP relay.
type SMTPSender struct {
	addr     string
	username string
	password string
	from     string
}

// NewSMTPSender builds a sender from viper config. The from address is
// required; a missing value is a configuration error reported by the
// flow before any side effect.
func NewSMTPSender() *SMTPSender {
	viper.SetDefault("smtp.host", "localhost")
	viper.SetDefault("smtp.port", "587")

	return &SMTPSender{
		addr:     viper.GetString("smtp.host") + ":" + viper.GetString("smtp.port"),
		username: viper.GetString("smtp.username"),
		password: viper.GetString("smtp.password"),
		from:     viper.GetString("mail.from_address"),
	}
}

// From returns the configured sender address; empty when unconfigured.
func (s *SMTPSender) From() string {
	return s.from
}

// Send delivers one message. No retries; a failed send surfaces to the
// caller.
func (s *SMTPSender) Send(to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if s.username != "" {
		host := s.addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.username, s.password, host)
	}

	if err := smtp.SendMail(s.addr, auth, s.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}
