package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Stripe implements the Provider interface against the Stripe Checkout API.
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
	Tolerance     time.Duration
	Now           func() time.Time
}

const defaultStripeBaseURL = "https://api.stripe.com"

// CreateSession opens a hosted checkout session and returns its id and
// redirect URL.
func (s Stripe) CreateSession(ctx context.Context, req SessionRequest) (SessionResponse, error) {
	if strings.TrimSpace(s.SecretKey) == "" {
		return SessionResponse{}, errors.New("stripe: secret key is required")
	}
	if strings.TrimSpace(req.OrderNumber) == "" {
		return SessionResponse{}, errors.New("stripe: order number is required")
	}
	if len(req.Lines) == 0 {
		return SessionResponse{}, errors.New("stripe: at least one line item is required")
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("locale", "pl")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Add("payment_method_types[]", "card")
	form.Add("payment_method_types[]", "p24")
	form.Set("payment_method_options[p24][tos_shown_and_accepted]", "true")
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}
	for i, line := range req.Lines {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[quantity]", strconv.Itoa(line.Qty))
		form.Set(prefix+"[price_data][currency]", strings.ToLower(req.Currency))
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(line.UnitAmount, 10))
		form.Set(prefix+"[price_data][product_data][name]", line.Name)
		if line.Description != "" {
			form.Set(prefix+"[price_data][product_data][description]", line.Description)
		}
		if line.ImageURL != "" {
			form.Set(prefix+"[price_data][product_data][images][]", line.ImageURL)
		}
	}
	for key, value := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	endpoint := strings.TrimRight(s.baseURL(), "/") + "/v1/checkout/sessions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return SessionResponse{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.SecretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client().Do(httpReq)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("stripe: create session: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SessionResponse{}, fmt.Errorf("stripe: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return SessionResponse{}, fmt.Errorf("stripe: create session: status %d: %s", resp.StatusCode, truncate(payload, 256))
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(payload, &session); err != nil {
		return SessionResponse{}, fmt.Errorf("stripe: decode session: %w", err)
	}
	if session.ID == "" {
		return SessionResponse{}, errors.New("stripe: response missing session id")
	}
	return SessionResponse{Provider: "stripe", SessionID: session.ID, RedirectURL: session.URL}, nil
}

// VerifyWebhook validates the Stripe-Signature header and normalises the
// event payload. Signature failures are reported through the result, not as a
// transport error, mirroring how settled webhooks are acknowledged upstream.
func (s Stripe) VerifyWebhook(r *http.Request, body []byte) (WebhookResult, error) {
	header := ""
	if r != nil {
		header = r.Header.Get("Stripe-Signature")
	}
	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return WebhookResult{Valid: false, Err: err}, nil
	}

	if tolerance := s.tolerance(); tolerance > 0 {
		age := s.now().Sub(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return WebhookResult{Valid: false, Err: errors.New("signature timestamp outside tolerance")}, nil
		}
	}

	expected := s.computeSignature(timestamp, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			matched = true
			break
		}
	}
	if !matched {
		return WebhookResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID          string            `json:"id"`
				AmountTotal int64             `json:"amount_total"`
				Metadata    map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookResult{Valid: false, Err: err}, nil
	}

	return WebhookResult{
		Valid:       true,
		EventType:   event.Type,
		SessionID:   event.Data.Object.ID,
		OrderNumber: event.Data.Object.Metadata["orderNumber"],
		Amount:      event.Data.Object.AmountTotal,
		Status:      normaliseEventStatus(event.Type),
		Payload:     body,
	}, nil
}

func (s Stripe) computeSignature(timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(s.WebhookSecret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayload produces a valid Stripe-Signature header value. Used by tests
// and the webhook replay tool.
func (s Stripe) SignPayload(timestamp int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, s.computeSignature(timestamp, body))
}

func parseSignatureHeader(header string) (int64, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, errors.New("missing Stripe-Signature header")
	}
	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("malformed timestamp: %w", err)
			}
			timestamp = parsed
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return 0, nil, errors.New("malformed Stripe-Signature header")
	}
	return timestamp, signatures, nil
}

func normaliseEventStatus(eventType string) string {
	switch eventType {
	case "checkout.session.completed":
		return "PAID"
	case "checkout.session.expired":
		return "EXPIRED"
	case "checkout.session.async_payment_failed":
		return "FAILED"
	default:
		return "PENDING"
	}
}

func (s Stripe) baseURL() string {
	if strings.TrimSpace(s.BaseURL) != "" {
		return s.BaseURL
	}
	return defaultStripeBaseURL
}

func (s Stripe) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}

func (s Stripe) tolerance() time.Duration {
	if s.Tolerance > 0 {
		return s.Tolerance
	}
	return 5 * time.Minute
}

func (s Stripe) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
