package smtp

import (
	"context"

	mailscheduler "github.com/interactive-solutions/go-mailscheduler"
	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"
)

type Config struct {
	Host string `env:"SMTP_HOST,required"`
	Port int    `env:"SMTP_PORT" envDefault:"465"`
	User string `env:"SMTP_USER,required"`
	Pass string `env:"SMTP_PASS,required"`

	// Sender address, defaults to User when empty.
	From string `env:"SMTP_FROM"`
}

type SmtpOption func(t *smtpTransport)

func SetFrom(from string) SmtpOption {
	return func(t *smtpTransport) {
		t.from = from
	}
}

type smtpTransport struct {
	dialer *gomail.Dialer

	from string
}

func NewSmtpTransport(config Config, options ...SmtpOption) mailscheduler.EmailTransport {
	t := &smtpTransport{
		dialer: gomail.NewDialer(config.Host, config.Port, config.User, config.Pass),
		from:   config.From,
	}

	if t.from == "" {
		t.from = config.User
	}

	for _, option := range options {
		option(t)
	}

	return t
}

func (t *smtpTransport) Send(ctx context.Context, email, subject, textBody, htmlBody, fromName string) error {
	m := gomail.NewMessage()

	if fromName != "" {
		m.SetAddressHeader("From", t.from, fromName)
	} else {
		m.SetHeader("From", t.from)
	}

	m.SetHeader("To", email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	return errors.Wrap(t.dialer.DialAndSend(m), "Failed to send message over smtp")
}
