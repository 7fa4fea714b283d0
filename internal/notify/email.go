package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog"

	"github.com/polkart/storefront-api/internal/common"
	"github.com/polkart/storefront-api/internal/events"
	"github.com/polkart/storefront-api/internal/obs"
	"github.com/polkart/storefront-api/internal/pricing"
)

// Notification kinds used for deduplication markers.
const (
	KindConfirmation  = "confirmation"
	KindAdminCopy     = "admin-copy"
	KindInfluencer    = "influencer"
	KindAbandonedCart = "abandoned-cart"
	KindContact       = "contact"
	KindPaymentIssue  = "payment-issue"
)

// EmailNotifier sends transactional emails for selected topics.
type EmailNotifier struct {
	Mail       common.EmailSender
	Dedupe     Dedupe
	AdminEmail string
	ShopName   string
	Enabled    bool
	Logger     zerolog.Logger
}

// OrderPayload is the event body shared by order lifecycle topics.
type OrderPayload struct {
	OrderNumber   string  `json:"orderNumber"`
	CustomerEmail string  `json:"customerEmail"`
	CustomerName  string  `json:"customerName"`
	FinalAmount   int64   `json:"finalAmount"`
	TotalDiscount int64   `json:"totalDiscount"`
	Currency      string  `json:"currency"`
	Lines         []Line  `json:"lines"`
	AppliedCode   string  `json:"appliedCode,omitempty"`
	VerifyURL     string  `json:"verifyUrl,omitempty"`
}

// Line is a single order position rendered in confirmation emails.
type Line struct {
	Name  string `json:"name"`
	Qty   int    `json:"qty"`
	Total int64  `json:"total"`
}

// CodePayload is the body of code.redeemed events.
type CodePayload struct {
	OrderNumber string `json:"orderNumber"`
	Code        string `json:"code"`
	Contact     string `json:"contact"`
	Discount    int64  `json:"discount"`
	Currency    string `json:"currency"`
}

// CartPayload is the body of cart.abandoned events.
type CartPayload struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	CartURL  string `json:"cartUrl,omitempty"`
	ItemsCnt int    `json:"itemsCount"`
}

// ContactPayload is the body of contact.received events.
type ContactPayload struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Notify implements events.Notifier.
func (n EmailNotifier) Notify(ctx context.Context, event events.DomainEvent) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	switch event.Topic {
	case events.TopicOrderPaid:
		return n.orderPaid(ctx, event)
	case events.TopicPaymentFailed, events.TopicPaymentExpired:
		return n.paymentIssue(ctx, event)
	case events.TopicCodeRedeemed:
		return n.codeRedeemed(ctx, event)
	case events.TopicCartAbandoned:
		return n.cartAbandoned(ctx, event)
	case events.TopicContactReceived:
		return n.contactReceived(ctx, event)
	default:
		return nil
	}
}

func (n EmailNotifier) orderPaid(ctx context.Context, event events.DomainEvent) error {
	var p OrderPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("order paid: decode payload: %w", err)
	}
	subject := fmt.Sprintf("Potwierdzenie zamówienia %s", p.OrderNumber)
	body := n.confirmationBody(p)
	if err := n.send(ctx, p.OrderNumber, KindConfirmation, p.CustomerEmail, subject, body); err != nil {
		return err
	}
	if n.AdminEmail == "" {
		return nil
	}
	adminSubject := fmt.Sprintf("Nowe opłacone zamówienie %s", p.OrderNumber)
	return n.send(ctx, p.OrderNumber, KindAdminCopy, n.AdminEmail, adminSubject, body)
}

func (n EmailNotifier) paymentIssue(ctx context.Context, event events.DomainEvent) error {
	if n.AdminEmail == "" {
		return nil
	}
	var p OrderPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("payment issue: decode payload: %w", err)
	}
	reason := "nie powiodła się"
	if event.Topic == events.TopicPaymentExpired {
		reason = "wygasła"
	}
	subject := fmt.Sprintf("Płatność za zamówienie %s %s", p.OrderNumber, reason)
	body := fmt.Sprintf("<p>Płatność za zamówienie <strong>%s</strong> (%s) %s.</p>",
		html.EscapeString(p.OrderNumber), html.EscapeString(p.CustomerEmail), reason)
	return n.send(ctx, p.OrderNumber, KindPaymentIssue, n.AdminEmail, subject, body)
}

func (n EmailNotifier) codeRedeemed(ctx context.Context, event events.DomainEvent) error {
	var p CodePayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("code redeemed: decode payload: %w", err)
	}
	if strings.TrimSpace(p.Contact) == "" {
		return nil
	}
	subject := fmt.Sprintf("Twój kod %s został użyty", p.Code)
	body := fmt.Sprintf(
		"<p>Kod rabatowy <strong>%s</strong> został użyty w zamówieniu %s.</p><p>Wartość rabatu: %s %s.</p>",
		html.EscapeString(p.Code), html.EscapeString(p.OrderNumber),
		formatAmount(pricing.Money(p.Discount)), html.EscapeString(p.Currency))
	return n.send(ctx, p.OrderNumber, KindInfluencer, p.Contact, subject, body)
}

func (n EmailNotifier) cartAbandoned(ctx context.Context, event events.DomainEvent) error {
	var p CartPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("cart abandoned: decode payload: %w", err)
	}
	if strings.TrimSpace(p.Email) == "" {
		return nil
	}
	subject := "Twój koszyk czeka"
	greeting := "Cześć"
	if p.Name != "" {
		greeting = fmt.Sprintf("Cześć %s", html.EscapeString(p.Name))
	}
	body := fmt.Sprintf("<p>%s,</p><p>zostawiłeś produkty w koszyku w sklepie %s. Dokończ zakupy, zanim znikną.</p>",
		greeting, html.EscapeString(n.ShopName))
	if p.CartURL != "" {
		body += fmt.Sprintf("<p><a href=%q>Wróć do koszyka</a></p>", p.CartURL)
	}
	return n.send(ctx, event.OrderNumber, KindAbandonedCart, p.Email, subject, body)
}

func (n EmailNotifier) contactReceived(ctx context.Context, event events.DomainEvent) error {
	if n.AdminEmail == "" {
		return nil
	}
	var p ContactPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("contact: decode payload: %w", err)
	}
	subject := fmt.Sprintf("Wiadomość z formularza kontaktowego od %s", p.Name)
	body := fmt.Sprintf("<p>Od: %s &lt;%s&gt;</p><p>%s</p>",
		html.EscapeString(p.Name), html.EscapeString(p.Email),
		strings.ReplaceAll(html.EscapeString(p.Message), "\n", "<br>"))
	return n.send(ctx, event.OrderNumber, KindContact, n.AdminEmail, subject, body)
}

// send performs the at-most-once delivery for one recipient. The dedupe
// marker is released when the provider rejects the send so a later retry
// can go through.
func (n EmailNotifier) send(ctx context.Context, orderNumber, kind, to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil
	}
	ok, err := n.Dedupe.Acquire(ctx, orderNumber, kind, to)
	if err != nil {
		return err
	}
	if !ok {
		n.Logger.Debug().Str("order", orderNumber).Str("kind", kind).Msg("notification already sent")
		n.count(kind, "deduped")
		return nil
	}
	if err := n.Mail.Send(ctx, to, subject, body); err != nil {
		if relErr := n.Dedupe.Release(ctx, orderNumber, kind, to); relErr != nil {
			n.Logger.Warn().Err(relErr).Str("order", orderNumber).Msg("release dedupe marker")
		}
		n.count(kind, "failed")
		return fmt.Errorf("send %s to %s: %w", kind, to, err)
	}
	n.count(kind, "sent")
	return nil
}

func (n EmailNotifier) count(kind, result string) {
	if obs.NotificationsTotal != nil {
		obs.NotificationsTotal.WithLabelValues(kind, result).Inc()
	}
}

func (n EmailNotifier) confirmationBody(p OrderPayload) string {
	var sb strings.Builder
	name := strings.TrimSpace(p.CustomerName)
	if name == "" {
		name = "Kliencie"
	}
	fmt.Fprintf(&sb, "<p>Dziękujemy za zakupy, %s!</p>", html.EscapeString(name))
	fmt.Fprintf(&sb, "<p>Numer zamówienia: <strong>%s</strong></p>", html.EscapeString(p.OrderNumber))
	sb.WriteString("<table><tr><th>Produkt</th><th>Ilość</th><th>Kwota</th></tr>")
	for _, line := range p.Lines {
		fmt.Fprintf(&sb, "<tr><td>%s</td><td>%d</td><td>%s %s</td></tr>",
			html.EscapeString(line.Name), line.Qty, formatAmount(pricing.Money(line.Total)), html.EscapeString(p.Currency))
	}
	sb.WriteString("</table>")
	if p.TotalDiscount > 0 {
		fmt.Fprintf(&sb, "<p>Rabat: -%s %s", formatAmount(pricing.Money(p.TotalDiscount)), html.EscapeString(p.Currency))
		if p.AppliedCode != "" {
			fmt.Fprintf(&sb, " (kod %s)", html.EscapeString(p.AppliedCode))
		}
		sb.WriteString("</p>")
	}
	fmt.Fprintf(&sb, "<p>Do zapłaty: <strong>%s %s</strong></p>", formatAmount(pricing.Money(p.FinalAmount)), html.EscapeString(p.Currency))
	if p.VerifyURL != "" {
		fmt.Fprintf(&sb, "<p><a href=%q>Zobacz szczegóły zamówienia</a></p>", p.VerifyURL)
	}
	return sb.String()
}

// formatAmount renders minor units as a decimal string, e.g. 2500 -> "25.00".
func formatAmount(m pricing.Money) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, m/100, m%100)
}
