package notification

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type MailConfig struct {
	Host     string `env:"MAIL_HOST"`
	Username string `env:"MAIL_USERNAME"`
	Password string `env:"MAIL_PASSWORD"`
	Port     int64  `env:"MAIL_PORT"`
	From     string `env:"MAIL_FROM"`
}

func (c MailConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// Mailer is satisfied by *gomail.Dialer.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SubjectFunc picks the subject line for a message body.
type SubjectFunc func(to, body string) string

type MailNotification struct {
	cfg     MailConfig
	mailer  Mailer
	subject SubjectFunc
}

func NewMailNotification(cfg MailConfig, mailer Mailer, subject SubjectFunc) *MailNotification {
	if mailer == nil {
		port := int(cfg.Port)
		if port == 0 {
			port = 587
		}
		mailer = gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	}
	if subject == nil {
		subject = func(string, string) string { return "Emergency alert" }
	}
	return &MailNotification{cfg: cfg, mailer: mailer, subject: subject}
}

// Send mails text to address. gomail has no context support, so ctx is only
// checked before dialing.
func (m *MailNotification) Send(ctx context.Context, address, text string) error {
	return m.SendMail(ctx, address, m.subject(address, text), text, "")
}

// SendMail sends a plain text body with an optional HTML alternative.
func (m *MailNotification) SendMail(ctx context.Context, to, subject, text, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("empty mail recipient")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", text)
	if html != "" {
		msg.AddAlternative("text/html", html)
	}
	if err := m.mailer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
