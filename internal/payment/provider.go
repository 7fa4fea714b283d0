package payment

import (
	"context"
	"net/http"
)

// SessionLine is one display line of a hosted checkout page. UnitAmount is the
// discounted per-unit price in minor units, as computed by the pricing engine.
type SessionLine struct {
	Name        string
	Description string
	UnitAmount  int64
	Qty         int
	ImageURL    string
}

// SessionRequest captures the information required to open a hosted checkout
// session with a provider.
type SessionRequest struct {
	OrderNumber   string
	CustomerEmail string
	Currency      string
	SuccessURL    string
	CancelURL     string
	Lines         []SessionLine
	Metadata      map[string]string
}

// SessionResponse is the minimal information returned when a session is created.
type SessionResponse struct {
	Provider    string
	SessionID   string
	RedirectURL string
}

// WebhookResult contains the normalised data extracted from a webhook
// notification after signature verification.
type WebhookResult struct {
	Valid       bool
	EventType   string
	SessionID   string
	OrderNumber string
	Amount      int64
	Status      string
	Payload     []byte
	Err         error
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (SessionResponse, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookResult, error)
}
