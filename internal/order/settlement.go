package order

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/polkart/storefront-api/internal/common"
	"github.com/polkart/storefront-api/internal/discount"
	"github.com/polkart/storefront-api/internal/events"
	"github.com/polkart/storefront-api/internal/notify"
	"github.com/polkart/storefront-api/internal/obs"
	"github.com/polkart/storefront-api/internal/payment"
	"github.com/polkart/storefront-api/internal/pricing"
)

const maxWebhookBody = 1 << 20

// SettleStore is the persistence surface the webhook settlement needs.
type SettleStore interface {
	GetByNumber(ctx context.Context, number string) (Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]Item, error)
	MarkStatus(ctx context.Context, number, status string, when time.Time) (bool, error)
}

// Inventory adjusts on-hand stock once an order is paid.
type Inventory interface {
	DecrementStock(ctx context.Context, id int64, qty int) error
}

// Settler processes provider webhooks: it verifies the signature, settles the
// order status exactly once and emits the matching domain events.
type Settler struct {
	Provider      payment.Provider
	Store         SettleStore
	Inventory     Inventory
	Table         discount.Table
	Bus           *events.Bus
	Signer        Signer
	PublicBaseURL string
	Currency      string
	Logger        zerolog.Logger
	Now           func() time.Time
}

// HandleWebhook is the POST /api/v1/webhooks/stripe handler.
func (s *Settler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unreadable body", nil)
		return
	}
	result, err := s.Provider.VerifyWebhook(r, body)
	if err != nil {
		s.Logger.Error().Err(err).Msg("verify webhook")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook verification failed", nil)
		return
	}
	if !result.Valid {
		s.Logger.Warn().Err(result.Err).Msg("webhook signature rejected")
		if obs.PaymentWebhookTotal != nil {
			obs.PaymentWebhookTotal.WithLabelValues("stripe", "rejected").Inc()
		}
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "webhook signature rejected", nil)
		return
	}
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "accepted").Inc()
	}

	// Events without an order reference (or ones we do not settle on) are
	// acknowledged so the provider stops retrying them.
	if result.OrderNumber == "" || !settlesTo(result.Status) {
		common.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	if err := s.settle(r.Context(), result); err != nil {
		s.Logger.Error().Err(err).Str("order", result.OrderNumber).Msg("settle webhook")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settlement failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"received": true})
}

func settlesTo(status string) bool {
	return status == StatusPaid || status == StatusFailed || status == StatusExpired
}

func (s *Settler) settle(ctx context.Context, result payment.WebhookResult) error {
	changed, err := s.Store.MarkStatus(ctx, result.OrderNumber, result.Status, s.now())
	if err != nil {
		return err
	}
	if !changed {
		// Replayed webhook or an order already settled. Idempotent no-op.
		s.Logger.Debug().Str("order", result.OrderNumber).Str("status", result.Status).Msg("webhook replay ignored")
		return nil
	}

	if obs.OrdersSettledTotal != nil {
		obs.OrdersSettledTotal.WithLabelValues(result.Status).Inc()
	}

	o, err := s.Store.GetByNumber(ctx, result.OrderNumber)
	if err != nil {
		return err
	}
	items, err := s.Store.ListItems(ctx, o.ID)
	if err != nil {
		return err
	}

	// The provider-reported amount must match the persisted breakdown; a
	// mismatch means the session and the order diverged.
	if result.Amount != 0 && result.Amount != o.FinalAmount {
		s.Logger.Warn().
			Str("order", o.Number).
			Int64("session_amount", result.Amount).
			Int64("order_amount", o.FinalAmount).
			Msg("webhook amount does not match order")
	}

	payload := s.orderPayload(o, items)
	switch result.Status {
	case StatusPaid:
		s.decrementStock(ctx, o.Number, items)
		if _, err := s.Bus.Emit(ctx, events.TopicOrderPaid, o.Number, payload); err != nil {
			s.Logger.Error().Err(err).Str("order", o.Number).Msg("emit order.paid")
		}
		s.emitCodeRedeemed(ctx, o)
	case StatusFailed:
		if _, err := s.Bus.Emit(ctx, events.TopicPaymentFailed, o.Number, payload); err != nil {
			s.Logger.Error().Err(err).Str("order", o.Number).Msg("emit payment.failed")
		}
	case StatusExpired:
		if _, err := s.Bus.Emit(ctx, events.TopicPaymentExpired, o.Number, payload); err != nil {
			s.Logger.Error().Err(err).Str("order", o.Number).Msg("emit payment.expired")
		}
	}
	return nil
}

// decrementStock runs at most once per order because settle only reaches it on
// the first status transition. Failures are logged, not retried; stock is
// advisory on the storefront.
func (s *Settler) decrementStock(ctx context.Context, number string, items []Item) {
	if s.Inventory == nil {
		return
	}
	for _, item := range items {
		if err := s.Inventory.DecrementStock(ctx, item.ProductID, item.Qty); err != nil {
			s.Logger.Error().Err(err).
				Str("order", number).
				Int64("product_id", item.ProductID).
				Msg("decrement stock")
		}
	}
}

// emitCodeRedeemed resolves the associated contact from the live discount
// table; orders settled after a table change simply skip the notification.
func (s *Settler) emitCodeRedeemed(ctx context.Context, o Order) {
	if o.AppliedCode == "" {
		return
	}
	code, ok := s.Table.Lookup(o.AppliedCode)
	if !ok || code.Contact == "" {
		return
	}
	payload := notify.CodePayload{
		OrderNumber: o.Number,
		Code:        o.AppliedCode,
		Contact:     code.Contact,
		Discount:    o.CodeDiscount,
		Currency:    s.Currency,
	}
	if _, err := s.Bus.Emit(ctx, events.TopicCodeRedeemed, o.Number, payload); err != nil {
		s.Logger.Error().Err(err).Str("order", o.Number).Msg("emit code.redeemed")
	}
}

func (s *Settler) orderPayload(o Order, items []Item) notify.OrderPayload {
	lines := make([]notify.Line, 0, len(items))
	var reconciled pricing.Money
	for _, item := range items {
		lines = append(lines, notify.Line{Name: item.Name, Qty: item.Qty, Total: item.Total})
		reconciled += item.Total
	}
	if reconciled != o.FinalAmount {
		s.Logger.Warn().
			Str("order", o.Number).
			Int64("line_sum", reconciled).
			Int64("final_amount", o.FinalAmount).
			Msg("persisted lines do not reconcile with final amount")
	}
	return notify.OrderPayload{
		OrderNumber:   o.Number,
		CustomerEmail: o.Customer.Email,
		CustomerName:  o.Customer.Name,
		FinalAmount:   o.FinalAmount,
		TotalDiscount: o.TotalDiscount,
		Currency:      o.Currency,
		Lines:         lines,
		AppliedCode:   o.AppliedCode,
		VerifyURL:     s.verifyURL(o.Number),
	}
}

func (s *Settler) verifyURL(number string) string {
	if s.PublicBaseURL == "" {
		return ""
	}
	return s.PublicBaseURL + "/zamowienie/potwierdzenie?" + s.Signer.SignedQuery(number).Encode()
}

func (s *Settler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
