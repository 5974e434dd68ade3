package mailscheduler

import "context"

// EmailTransport delivers a single rendered message. The fromName is the
// display name to present as the sender, empty when none applies.
type EmailTransport interface {
	Send(ctx context.Context, email, subject, textBody, htmlBody, fromName string) error
}
