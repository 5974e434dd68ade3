package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	mailscheduler "github.com/interactive-solutions/go-mailscheduler"
)

type sesTransport struct {
	ses *ses.SES

	from    string
	charset string
}

func NewSesTransport(sess *session.Session, from string) mailscheduler.EmailTransport {
	return &sesTransport{
		ses:     ses.New(sess),
		from:    from,
		charset: "UTF-8",
	}
}

func (t *sesTransport) Send(ctx context.Context, email, subject, textBody, htmlBody, fromName string) error {
	source := t.from
	if fromName != "" {
		source = fmt.Sprintf("%s <%s>", fromName, t.from)
	}

	input := &ses.SendEmailInput{
		Destination: &ses.Destination{
			ToAddresses: []*string{
				aws.String(email),
			},
		},
		Message: &ses.Message{
			Body: &ses.Body{
				Html: &ses.Content{
					Charset: aws.String(t.charset),
					Data:    aws.String(htmlBody),
				},
				Text: &ses.Content{
					Charset: aws.String(t.charset),
					Data:    aws.String(textBody),
				},
			},
			Subject: &ses.Content{
				Charset: aws.String(t.charset),
				Data:    aws.String(subject),
			},
		},

		Source: aws.String(source),
	}

	_, err := t.ses.SendEmailWithContext(ctx, input)

	return err
}
