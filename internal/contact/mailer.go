// Package contact delivers messages from the public contact form.
package contact

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	gomail "github.com/go-mail/mail"
	"github.com/rentwise/portal/internal/config"
	"github.com/rentwise/portal/pkg/logger"
)

var ErrInvalid = errors.New("invalid contact message")

type Message struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Body    string `json:"message"`
}

// Validate trims fields and checks the sender address.
func (m *Message) Validate() error {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	m.Subject = strings.TrimSpace(m.Subject)
	m.Body = strings.TrimSpace(m.Body)
	if m.Name == "" || m.Body == "" {
		return fmt.Errorf("%w: name and message are required", ErrInvalid)
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		return fmt.Errorf("%w: bad email address", ErrInvalid)
	}
	if len(m.Body) > 5000 {
		return fmt.Errorf("%w: message too long", ErrInvalid)
	}
	return nil
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// SMTPMailer sends contact messages to a fixed inbox.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = 10 * time.Second
	return &SMTPMailer{cfg: cfg, dialer: d}
}

func (s *SMTPMailer) message(m Message) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.cfg.From)
	msg.SetHeader("To", s.cfg.To)
	msg.SetAddressHeader("Reply-To", m.Email, m.Name)
	subject := m.Subject
	if subject == "" {
		subject = "Contact form"
	}
	msg.SetHeader("Subject", "[portal] "+subject)
	msg.SetBody("text/plain", fmt.Sprintf("From: %s <%s>\n\n%s\n", m.Name, m.Email, m.Body))
	return msg
}

func (s *SMTPMailer) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(s.message(m)); err != nil {
		logger.Errorf("contact: smtp send to %s failed: %v", s.cfg.To, err)
		return fmt.Errorf("smtp send: %w", err)
	}
	logger.Infof("contact: message from %s delivered", m.Email)
	return nil
}

// LogMailer only logs messages; used when SMTP is not configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, m Message) error {
	logger.L().Info().Str("from", m.Email).Str("subject", m.Subject).Msg("contact message (smtp disabled)")
	return nil
}
