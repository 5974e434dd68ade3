package mailgun

import (
	"context"
	"fmt"

	mailscheduler "github.com/interactive-solutions/go-mailscheduler"
	"github.com/mailgun/mailgun-go/v3"
	"github.com/pkg/errors"
)

type MailgunOption func(t *mailgunTransport)

func SetFrom(from string) MailgunOption {
	return func(t *mailgunTransport) {
		t.from = from
	}
}

func SetReplyTo(replyTo string) MailgunOption {
	return func(t *mailgunTransport) {
		t.replyTo = replyTo
	}
}

type mailgunTransport struct {
	mg mailgun.Mailgun

	from    string
	replyTo string
}

func NewMailgunTransport(mailgunClient mailgun.Mailgun, options ...MailgunOption) mailscheduler.EmailTransport {
	t := &mailgunTransport{
		mg: mailgunClient,
	}

	for _, option := range options {
		option(t)
	}

	return t
}

func (t *mailgunTransport) Send(ctx context.Context, email, subject, textBody, htmlBody, fromName string) error {
	from := t.from
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, t.from)
	}

	msg := t.mg.NewMessage(from, subject, textBody, email)
	msg.SetHtml(htmlBody)

	if t.replyTo != "" {
		msg.SetReplyTo(t.replyTo)
	}

	_, _, err := t.mg.Send(ctx, msg)

	return errors.Wrap(err, "Failed to send message")
}
