package order

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/polkart/storefront-api/internal/discount"
	"github.com/polkart/storefront-api/internal/events"
	"github.com/polkart/storefront-api/internal/payment"
	"github.com/polkart/storefront-api/internal/pricing"
)

type settleStoreStub struct {
	order   Order
	items   []Item
	settled map[string]string
}

func (s *settleStoreStub) GetByNumber(_ context.Context, number string) (Order, error) {
	if number != s.order.Number {
		return Order{}, ErrNotFound
	}
	return s.order, nil
}

func (s *settleStoreStub) ListItems(context.Context, uuid.UUID) ([]Item, error) {
	return s.items, nil
}

func (s *settleStoreStub) MarkStatus(_ context.Context, number, status string, _ time.Time) (bool, error) {
	if s.settled == nil {
		s.settled = map[string]string{}
	}
	if _, done := s.settled[number]; done {
		return false, nil
	}
	s.settled[number] = status
	return true, nil
}

type inventoryStub struct {
	decrements map[int64]int
}

func (s *inventoryStub) DecrementStock(_ context.Context, id int64, qty int) error {
	if s.decrements == nil {
		s.decrements = map[int64]int{}
	}
	s.decrements[id] += qty
	return nil
}

type eventStoreStub struct {
	events []events.DomainEvent
}

func (s *eventStoreStub) InsertDomainEvent(_ context.Context, ev events.DomainEvent) (events.DomainEvent, error) {
	s.events = append(s.events, ev)
	return ev, nil
}

func newTestSettler(t *testing.T) (*Settler, *settleStoreStub, *eventStoreStub, payment.Stripe) {
	t.Helper()
	stripe := payment.Stripe{WebhookSecret: "whsec_test"}
	store := &settleStoreStub{
		order: Order{
			ID:           uuid.New(),
			Number:       "A123456",
			Status:       StatusPendingPayment,
			Currency:     "PLN",
			Customer:     Customer{Name: "Jan", Email: "jan@example.com"},
			AppliedCode:  "SAVE20",
			Subtotal:     25000,
			CodeDiscount: 5000,
			FinalAmount:  17500,
		},
		items: []Item{
			{ProductID: 1, Name: "Plakat A2", Qty: 5, Total: 17500},
		},
	}
	evStore := &eventStoreStub{}
	settler := &Settler{
		Provider: stripe,
		Store:    store,
		Table: discount.Table{
			Codes: []pricing.Code{{Code: "SAVE20", Percent: 20, Contact: "influencer@example.com"}},
		},
		Bus:           &events.Bus{Store: evStore},
		Signer:        Signer{Secret: "test-secret"},
		PublicBaseURL: "https://shop.example.com",
		Currency:      "PLN",
		Logger:        zerolog.Nop(),
	}
	return settler, store, evStore, stripe
}

func signedWebhook(t *testing.T, stripe payment.Stripe, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", stripe.SignPayload(time.Now().Unix(), []byte(body)))
	return req
}

func completedBody(orderNumber string, amount int64) string {
	return fmt.Sprintf(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_1","amount_total":%d,"metadata":{"orderNumber":%q}}}}`, amount, orderNumber)
}

func TestWebhookSettlesPaidOrder(t *testing.T) {
	settler, store, evStore, stripe := newTestSettler(t)
	body := completedBody("A123456", 17500)

	rec := httptest.NewRecorder()
	settler.HandleWebhook(rec, signedWebhook(t, stripe, body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, StatusPaid, store.settled["A123456"])
	require.Len(t, evStore.events, 2)
	require.Equal(t, events.TopicOrderPaid, evStore.events[0].Topic)
	require.Equal(t, events.TopicCodeRedeemed, evStore.events[1].Topic)
}

func TestWebhookPaidOrderDecrementsStock(t *testing.T) {
	settler, _, _, stripe := newTestSettler(t)
	inv := &inventoryStub{}
	settler.Inventory = inv
	body := completedBody("A123456", 17500)

	first := httptest.NewRecorder()
	settler.HandleWebhook(first, signedWebhook(t, stripe, body))
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, map[int64]int{1: 5}, inv.decrements)

	// A replay settles nothing, so stock is not decremented twice.
	second := httptest.NewRecorder()
	settler.HandleWebhook(second, signedWebhook(t, stripe, body))
	require.Equal(t, map[int64]int{1: 5}, inv.decrements)
}

func TestWebhookExpiredSessionKeepsStock(t *testing.T) {
	settler, _, _, stripe := newTestSettler(t)
	inv := &inventoryStub{}
	settler.Inventory = inv
	body := fmt.Sprintf(`{"type":"checkout.session.expired","data":{"object":{"id":"cs_1","metadata":{"orderNumber":%q}}}}`, "A123456")

	rec := httptest.NewRecorder()
	settler.HandleWebhook(rec, signedWebhook(t, stripe, body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, inv.decrements)
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	settler, _, evStore, stripe := newTestSettler(t)
	body := completedBody("A123456", 17500)

	first := httptest.NewRecorder()
	settler.HandleWebhook(first, signedWebhook(t, stripe, body))
	second := httptest.NewRecorder()
	settler.HandleWebhook(second, signedWebhook(t, stripe, body))

	require.Equal(t, http.StatusOK, second.Code)
	require.Len(t, evStore.events, 2)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	settler, store, _, _ := newTestSettler(t)
	body := completedBody("A123456", 17500)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	rec := httptest.NewRecorder()
	settler.HandleWebhook(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, store.settled)
}

func TestWebhookExpiredSession(t *testing.T) {
	settler, store, evStore, stripe := newTestSettler(t)
	body := fmt.Sprintf(`{"type":"checkout.session.expired","data":{"object":{"id":"cs_1","metadata":{"orderNumber":%q}}}}`, "A123456")

	rec := httptest.NewRecorder()
	settler.HandleWebhook(rec, signedWebhook(t, stripe, body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, StatusExpired, store.settled["A123456"])
	require.Len(t, evStore.events, 1)
	require.Equal(t, events.TopicPaymentExpired, evStore.events[0].Topic)
}

func TestWebhookIgnoresUnrelatedEvents(t *testing.T) {
	settler, store, evStore, stripe := newTestSettler(t)
	body := `{"type":"payment_intent.created","data":{"object":{"id":"pi_1"}}}`

	rec := httptest.NewRecorder()
	settler.HandleWebhook(rec, signedWebhook(t, stripe, body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, store.settled)
	require.Empty(t, evStore.events)
}
