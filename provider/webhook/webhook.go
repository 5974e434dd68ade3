// Package webhook delivers rendered messages to a generic HTTP mail relay,
// useful when outbound smtp is terminated by a separate service.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	mailscheduler "github.com/interactive-solutions/go-mailscheduler"
	"github.com/pkg/errors"
)

type Config struct {
	Url      string `env:"MAIL_WEBHOOK_URL,required"`
	Username string `env:"MAIL_WEBHOOK_USERNAME"`
	Password string `env:"MAIL_WEBHOOK_PASSWORD"`
}

type webhookTransport struct {
	client *retryablehttp.Client

	url      string
	username string
	password string
}

func NewWebhookTransport(config Config) mailscheduler.EmailTransport {
	return &webhookTransport{
		client: retryablehttp.NewClient(),

		url:      config.Url,
		username: config.Username,
		password: config.Password,
	}
}

type message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Text     string `json:"text"`
	Html     string `json:"html"`
	FromName string `json:"fromName,omitempty"`
}

func (t *webhookTransport) Send(ctx context.Context, email, subject, textBody, htmlBody, fromName string) error {
	payload, err := json.Marshal(message{
		To:       email,
		Subject:  subject,
		Text:     textBody,
		Html:     htmlBody,
		FromName: fromName,
	})
	if err != nil {
		return errors.Wrap(err, "Failed to encode message payload")
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", mailscheduler.UserAgent)

	if t.username != "" {
		req.SetBasicAuth(t.username, t.password)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 || resp.StatusCode <= 199 {
		return errors.Errorf("Unexpected response code %d received from mail relay", resp.StatusCode)
	}

	return nil
}
