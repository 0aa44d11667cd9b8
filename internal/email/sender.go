// Package email sends transactional mail over SMTP.
package email

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"github.com/medicore/clinic-api/internal/config"
)

// Sender dials SMTP per message. When no host is configured the sender is
// disabled and callers should skip sending.
type Sender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSender(cfg config.SMTPConfig) *Sender {
	s := &Sender{from: cfg.From}
	if cfg.Host != "" {
		s.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return s
}

func (s *Sender) Enabled() bool {
	return s.dialer != nil
}

func (s *Sender) Send(to, subject, body string) error {
	if s.dialer == nil {
		return fmt.Errorf("smtp is not configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
