package order

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/polkart/storefront-api/internal/common"
)

// Store abstracts order reads for the verification handler.
type Store interface {
	GetByNumber(ctx context.Context, number string) (Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]Item, error)
}

// Handler exposes the signed success-page lookup.
type Handler struct {
	Store  Store
	Signer Signer
}

// Verify checks a signed success-page link and returns the order breakdown.
// Verification failures are reported in the body rather than via HTTP status
// so the success page can render a friendly message.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	number := strings.TrimSpace(query.Get("order"))
	timestamp := strings.TrimSpace(query.Get("timestamp"))
	signature := strings.TrimSpace(query.Get("signature"))

	if number == "" || timestamp == "" || signature == "" {
		common.JSON(w, http.StatusOK, map[string]any{
			"verified": false,
			"error":    "missing required parameters",
		})
		return
	}
	if err := h.Signer.Verify(number, timestamp, signature); err != nil {
		reason := "invalid link signature"
		if errors.Is(err, ErrLinkExpired) {
			reason = "link expired"
		}
		common.JSON(w, http.StatusOK, map[string]any{
			"verified": false,
			"error":    reason,
		})
		return
	}

	o, err := h.Store.GetByNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSON(w, http.StatusOK, map[string]any{
				"verified": false,
				"error":    "order not found",
			})
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load order", nil)
		return
	}
	items, err := h.Store.ListItems(r.Context(), o.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load order items", nil)
		return
	}

	lines := make([]map[string]any, 0, len(items))
	for _, it := range items {
		lines = append(lines, map[string]any{
			"productId": it.ProductID,
			"name":      it.Name,
			"unitPrice": it.UnitPrice,
			"qty":       it.Qty,
			"subtotal":  it.Subtotal,
			"discount":  it.Discount,
			"total":     it.Total,
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"verified": true,
		"data": map[string]any{
			"orderNumber":   o.Number,
			"status":        o.Status,
			"currency":      o.Currency,
			"subtotal":      o.Subtotal,
			"tierPercent":   o.TierPercent,
			"tierDiscount":  o.TierDiscount,
			"codePercent":   o.CodePercent,
			"codeDiscount":  o.CodeDiscount,
			"totalDiscount": o.TotalDiscount,
			"finalAmount":   o.FinalAmount,
			"appliedCode":   o.AppliedCode,
			"items":         lines,
		},
	})
}
