package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBrevoSend(t *testing.T) {
	var captured brevoMessage
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	b := &Brevo{
		APIKey:     "key-123",
		SenderName: "Polkart",
		SenderMail: "no-reply@example.com",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Logger:     zerolog.Nop(),
	}

	err := b.Send(context.Background(), "jan@example.com", "Potwierdzenie", "<p>cześć</p>")
	require.NoError(t, err)
	require.Equal(t, "key-123", apiKey)
	require.Equal(t, "no-reply@example.com", captured.Sender.Email)
	require.Len(t, captured.To, 1)
	require.Equal(t, "jan@example.com", captured.To[0].Email)
	require.Equal(t, "Potwierdzenie", captured.Subject)
	require.Equal(t, "<p>cześć</p>", captured.HTMLContent)
}

func TestBrevoSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthorized"}`))
	}))
	defer srv.Close()

	b := &Brevo{APIKey: "bad", SenderMail: "no-reply@example.com", BaseURL: srv.URL, HTTPClient: srv.Client(), Logger: zerolog.Nop()}
	err := b.Send(context.Background(), "jan@example.com", "x", "y")
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestBrevoSendRequiresRecipient(t *testing.T) {
	b := &Brevo{APIKey: "key"}
	require.Error(t, b.Send(context.Background(), "  ", "x", "y"))
}

func TestBrevoSendRequiresAPIKey(t *testing.T) {
	b := &Brevo{}
	require.Error(t, b.Send(context.Background(), "jan@example.com", "x", "y"))
}
