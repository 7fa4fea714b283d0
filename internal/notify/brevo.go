package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultBrevoURL = "https://api.brevo.com/v3/smtp/email"

// Brevo sends transactional email through the Brevo SMTP API.
type Brevo struct {
	APIKey     string
	SenderName string
	SenderMail string
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

type brevoParty struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoMessage struct {
	Sender      brevoParty   `json:"sender"`
	To          []brevoParty `json:"to"`
	Subject     string       `json:"subject"`
	HTMLContent string       `json:"htmlContent"`
}

// Send implements common.EmailSender.
func (b *Brevo) Send(ctx context.Context, to, subject, html string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("brevo: recipient is required")
	}
	if strings.TrimSpace(b.APIKey) == "" {
		return fmt.Errorf("brevo: api key is not configured")
	}
	body, err := json.Marshal(brevoMessage{
		Sender:      brevoParty{Name: b.SenderName, Email: b.SenderMail},
		To:          []brevoParty{{Email: to}},
		Subject:     subject,
		HTMLContent: html,
	})
	if err != nil {
		return fmt.Errorf("brevo: encode message: %w", err)
	}

	url := b.BaseURL
	if url == "" {
		url = defaultBrevoURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("brevo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", b.APIKey)

	client := b.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		b.Logger.Warn().Int("status", resp.StatusCode).Str("to", to).Msg("brevo rejected message")
		return fmt.Errorf("brevo: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	b.Logger.Debug().Str("to", to).Str("subject", subject).Msg("email dispatched")
	return nil
}
