package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookTransportPostsMessage(t *testing.T) {
	var received map[string]string
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	transport := NewWebhookTransport(Config{
		Url:      server.URL,
		Username: "relay",
		Password: "secret",
	})

	err := transport.Send(context.Background(), "a@example.com", "subject", "text", "<p>html</p>", "Jane")
	assert.NoError(t, err)

	assert.NotEmpty(t, authHeader)
	assert.Equal(t, map[string]string{
		"to":       "a@example.com",
		"subject":  "subject",
		"text":     "text",
		"html":     "<p>html</p>",
		"fromName": "Jane",
	}, received)
}

func TestWebhookTransportRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	transport := NewWebhookTransport(Config{Url: server.URL})

	err := transport.Send(context.Background(), "a@example.com", "subject", "text", "html", "")
	assert.Error(t, err)
}
