package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/polkart/storefront-api/internal/catalog"
	"github.com/polkart/storefront-api/internal/common"
	"github.com/polkart/storefront-api/internal/discount"
	"github.com/polkart/storefront-api/internal/events"
	"github.com/polkart/storefront-api/internal/notify"
	"github.com/polkart/storefront-api/internal/obs"
	"github.com/polkart/storefront-api/internal/order"
	"github.com/polkart/storefront-api/internal/payment"
	"github.com/polkart/storefront-api/internal/pricing"
)

// Stripe caps each metadata value at 500 characters.
const metadataValueLimit = 500

// ItemInput is one cart position submitted at checkout. Prices are never
// taken from the client; the catalog supplies them.
type ItemInput struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Qty       int   `json:"qty" validate:"required,gt=0,lte=999"`
}

// CustomerInput carries contact and shipping details.
type CustomerInput struct {
	Name        string `json:"name" validate:"required,min=2,max=120"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"max=32"`
	Street      string `json:"street" validate:"required,max=160"`
	HouseNumber string `json:"houseNumber" validate:"required,max=16"`
	PostalCode  string `json:"postalCode" validate:"required,max=12"`
	City        string `json:"city" validate:"required,max=120"`
	Country     string `json:"country" validate:"required,len=2"`
}

// Request is the checkout-session creation payload.
type Request struct {
	Items        []ItemInput   `json:"items" validate:"required,min=1,max=100,dive"`
	Customer     CustomerInput `json:"customer" validate:"required"`
	DiscountCode string        `json:"discountCode" validate:"max=64"`
}

// Response returns the created session together with the order breakdown the
// storefront renders on the summary step.
type Response struct {
	OrderNumber string         `json:"orderNumber"`
	SessionID   string         `json:"sessionId"`
	RedirectURL string         `json:"redirectUrl"`
	Totals      pricing.Totals `json:"totals"`
}

// Catalog resolves cart product IDs to authoritative catalog entries.
type Catalog interface {
	Resolve(ctx context.Context, ids []int64) (map[int64]catalog.Product, error)
}

// Orders persists a priced order with its per-line breakdown.
type Orders interface {
	Create(ctx context.Context, o order.Order, items []order.Item) error
}

// Service validates carts, prices them and opens hosted payment sessions.
type Service struct {
	Catalog       Catalog
	Table         discount.Table
	Orders        Orders
	Provider      payment.Provider
	Bus           *events.Bus
	Signer        order.Signer
	Validate      *validator.Validate
	Currency      string
	PublicBaseURL string
	Logger        zerolog.Logger
}

// CreateSession runs the full checkout: resolve products, compute totals,
// open the provider session, persist the order and emit order.created.
func (s *Service) CreateSession(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	defer func() {
		if obs.CheckoutSessionLatency != nil {
			obs.CheckoutSessionLatency.Observe(float64(time.Since(start).Milliseconds()))
		}
	}()

	if err := s.Validate.Struct(req); err != nil {
		return Response{}, common.BadRequest("validation failed", err)
	}

	ids := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.Catalog.Resolve(ctx, ids)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Response{}, common.BadRequest("unknown product in cart", err)
		}
		return Response{}, fmt.Errorf("checkout: resolve products: %w", err)
	}

	lines := make([]pricing.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		p := products[item.ProductID]
		lines = append(lines, pricing.LineItem{ProductID: p.ID, UnitPrice: p.Price, Qty: item.Qty})
	}
	totals, err := pricing.Compute(lines, s.Table.Tiers, s.Table.Codes, req.DiscountCode)
	if err != nil {
		return Response{}, common.BadRequest("cart cannot be priced", err)
	}

	number, err := order.NewNumber()
	if err != nil {
		return Response{}, fmt.Errorf("checkout: order number: %w", err)
	}

	session, err := s.Provider.CreateSession(ctx, s.sessionRequest(number, req, products, totals))
	if err != nil {
		return Response{}, fmt.Errorf("checkout: create payment session: %w", err)
	}

	o, items := s.buildOrder(number, req, products, totals, session.SessionID)
	if err := s.Orders.Create(ctx, o, items); err != nil {
		return Response{}, fmt.Errorf("checkout: persist order: %w", err)
	}

	if _, err := s.Bus.Emit(ctx, events.TopicOrderCreated, number, s.orderPayload(o, items, totals)); err != nil {
		// The order and session already exist; the event failure is logged,
		// not surfaced to the shopper.
		s.Logger.Error().Err(err).Str("order", number).Msg("emit order.created")
	}

	if obs.OrdersCreatedTotal != nil {
		obs.OrdersCreatedTotal.WithLabelValues("created").Inc()
	}
	if obs.DiscountsAppliedTotal != nil {
		if totals.TierDiscount > 0 {
			obs.DiscountsAppliedTotal.WithLabelValues("tier").Inc()
		}
		if totals.CodeDiscount > 0 {
			obs.DiscountsAppliedTotal.WithLabelValues("code").Inc()
		}
	}

	s.Logger.Info().
		Str("order", number).
		Str("session_id", session.SessionID).
		Int64("final_amount", totals.FinalAmount).
		Str("code", totals.AppliedCode).
		Msg("checkout session created")

	return Response{
		OrderNumber: number,
		SessionID:   session.SessionID,
		RedirectURL: session.RedirectURL,
		Totals:      totals,
	}, nil
}

func (s *Service) sessionRequest(number string, req Request, products map[int64]catalog.Product, totals pricing.Totals) payment.SessionRequest {
	// Quantity is folded into the line name and the allocated line total is
	// charged as a single unit, so the session amount equals FinalAmount
	// even when the discount share does not divide evenly per unit.
	sessionLines := make([]payment.SessionLine, 0, len(totals.Lines))
	for _, line := range totals.Lines {
		p := products[line.ProductID]
		name := p.Name
		if line.Qty > 1 {
			name = fmt.Sprintf("%s x %d", p.Name, line.Qty)
		}
		sessionLines = append(sessionLines, payment.SessionLine{
			Name:        name,
			Description: p.Description,
			UnitAmount:  line.Total,
			Qty:         1,
			ImageURL:    p.Image,
		})
	}
	return payment.SessionRequest{
		OrderNumber:   number,
		CustomerEmail: req.Customer.Email,
		Currency:      s.Currency,
		SuccessURL:    s.successURL(number),
		CancelURL:     s.PublicBaseURL + "/koszyk",
		Lines:         sessionLines,
		Metadata: map[string]string{
			"orderNumber": number,
			"breakdown":   breakdownMetadata(totals),
		},
	}
}

func (s *Service) successURL(number string) string {
	return s.PublicBaseURL + "/zamowienie/potwierdzenie?" + s.Signer.SignedQuery(number).Encode()
}

func (s *Service) buildOrder(number string, req Request, products map[int64]catalog.Product, totals pricing.Totals, sessionID string) (order.Order, []order.Item) {
	o := order.Order{
		Number:   number,
		Status:   order.StatusPendingPayment,
		Currency: s.Currency,
		Customer: order.Customer{
			Name:        req.Customer.Name,
			Email:       req.Customer.Email,
			Phone:       req.Customer.Phone,
			Street:      req.Customer.Street,
			HouseNumber: req.Customer.HouseNumber,
			PostalCode:  req.Customer.PostalCode,
			City:        req.Customer.City,
			Country:     req.Customer.Country,
		},
		AppliedCode:   totals.AppliedCode,
		Subtotal:      totals.Subtotal,
		TierPercent:   totals.TierPercent,
		TierDiscount:  totals.TierDiscount,
		CodePercent:   totals.CodePercent,
		CodeDiscount:  totals.CodeDiscount,
		TotalDiscount: totals.TotalDiscount,
		FinalAmount:   totals.FinalAmount,
		SessionID:     sessionID,
	}
	items := make([]order.Item, 0, len(totals.Lines))
	for _, line := range totals.Lines {
		p := products[line.ProductID]
		items = append(items, order.Item{
			ProductID: line.ProductID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Qty:       line.Qty,
			Subtotal:  line.Subtotal,
			Discount:  line.Discount,
			Total:     line.Total,
		})
	}
	return o, items
}

func (s *Service) orderPayload(o order.Order, items []order.Item, totals pricing.Totals) notify.OrderPayload {
	lines := make([]notify.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, notify.Line{Name: item.Name, Qty: item.Qty, Total: item.Total})
	}
	return notify.OrderPayload{
		OrderNumber:   o.Number,
		CustomerEmail: o.Customer.Email,
		CustomerName:  o.Customer.Name,
		FinalAmount:   totals.FinalAmount,
		TotalDiscount: totals.TotalDiscount,
		Currency:      s.Currency,
		Lines:         lines,
		AppliedCode:   totals.AppliedCode,
		VerifyURL:     s.successURL(o.Number),
	}
}

type breakdownLine struct {
	ID       int64 `json:"id"`
	Qty      int   `json:"qty"`
	Subtotal int64 `json:"sub,omitempty"`
	Discount int64 `json:"disc,omitempty"`
	Total    int64 `json:"tot,omitempty"`
}

// breakdownMetadata serializes the per-line breakdown for the provider's
// metadata field, falling back to an id+qty projection when the full form
// would exceed the value limit.
func breakdownMetadata(totals pricing.Totals) string {
	full := make([]breakdownLine, 0, len(totals.Lines))
	for _, line := range totals.Lines {
		full = append(full, breakdownLine{
			ID:       line.ProductID,
			Qty:      line.Qty,
			Subtotal: line.Subtotal,
			Discount: line.Discount,
			Total:    line.Total,
		})
	}
	if raw, err := json.Marshal(full); err == nil && len(raw) <= metadataValueLimit {
		return string(raw)
	}
	reduced := make([]breakdownLine, 0, len(totals.Lines))
	for _, line := range totals.Lines {
		reduced = append(reduced, breakdownLine{ID: line.ProductID, Qty: line.Qty})
	}
	raw, err := json.Marshal(reduced)
	if err != nil {
		return ""
	}
	if len(raw) > metadataValueLimit {
		return ""
	}
	return string(raw)
}
