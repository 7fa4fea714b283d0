package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// Money represents a monetary value stored in currency minor units (grosz).
type Money = int64

// ErrInvalidInput is returned when a line item or configuration table is
// structurally malformed. All monetary edge cases (unknown codes, missing
// tiers, oversized discounts) are absorbed by the engine and never error.
var ErrInvalidInput = errors.New("pricing: invalid input")

// LineItem describes one product-and-quantity entry of a cart or order.
// Inputs are never mutated by the engine.
type LineItem struct {
	ProductID int64
	UnitPrice Money
	Qty       int
}

// Tier unlocks a percent discount once the cart's total quantity reaches MinQty.
type Tier struct {
	MinQty  int
	Percent int
}

// Code is a redeemable discount code. Contact, when set, identifies the
// associated party (e.g. an affiliate) to notify when the code is consumed.
type Code struct {
	Code    string
	Percent int
	Contact string
}

// LineTotals carries the per-line share of the combined discount.
type LineTotals struct {
	ProductID      int64
	Qty            int
	Subtotal       Money
	Discount       Money
	Total          Money
	UnitPriceAfter float64
}

// Totals is the full order breakdown. Recomputing from identical inputs
// yields an identical value, so callers may re-derive it at webhook time.
type Totals struct {
	Subtotal      Money
	TotalQty      int
	TierPercent   int
	TierDiscount  Money
	CodePercent   int
	CodeDiscount  Money
	AppliedCode   string
	Contact       string
	TotalDiscount Money
	FinalAmount   Money
	Lines         []LineTotals
}

// Compute derives the complete order breakdown from cart line items, the
// quantity tier table and the discount code table.
//
// The two discount sources combine additively and the sum is clamped to the
// subtotal, so the final amount never goes negative. The combined discount is
// spread across lines proportionally to their subtotals; rounding remainders
// are settled so the per-line amounts reconcile exactly and no line total ever
// goes below zero.
func Compute(items []LineItem, tiers []Tier, codes []Code, applied string) (Totals, error) {
	var t Totals
	t.Lines = make([]LineTotals, 0, len(items))

	for i, it := range items {
		if it.Qty <= 0 {
			return Totals{}, fmt.Errorf("%w: line %d: quantity must be positive", ErrInvalidInput, i)
		}
		if it.UnitPrice < 0 {
			return Totals{}, fmt.Errorf("%w: line %d: unit price must not be negative", ErrInvalidInput, i)
		}
		lineSubtotal := Money(it.Qty) * it.UnitPrice
		t.Subtotal += lineSubtotal
		t.TotalQty += it.Qty
		t.Lines = append(t.Lines, LineTotals{
			ProductID:      it.ProductID,
			Qty:            it.Qty,
			Subtotal:       lineSubtotal,
			Total:          lineSubtotal,
			UnitPriceAfter: float64(it.UnitPrice),
		})
	}

	t.TierPercent = matchTier(tiers, t.TotalQty)

	if code, ok := lookupCode(codes, applied); ok {
		t.CodePercent = code.Percent
		t.AppliedCode = code.Code
		t.Contact = code.Contact
	}

	t.TierDiscount = percentOf(t.Subtotal, t.TierPercent)
	t.CodeDiscount = percentOf(t.Subtotal, t.CodePercent)

	t.TotalDiscount = t.TierDiscount + t.CodeDiscount
	if t.TotalDiscount > t.Subtotal {
		t.TotalDiscount = t.Subtotal
	}
	t.FinalAmount = t.Subtotal - t.TotalDiscount

	allocate(t.Lines, t.Subtotal, t.TotalDiscount)
	return t, nil
}

// matchTier returns the percent of the tier with the highest MinQty the
// quantity still meets, or 0 when no tier matches.
func matchTier(tiers []Tier, qty int) int {
	best := -1
	percent := 0
	for _, tier := range tiers {
		if tier.MinQty <= qty && tier.MinQty > best {
			best = tier.MinQty
			percent = tier.Percent
		}
	}
	return percent
}

// lookupCode finds a code by case-insensitive exact match. A miss is a valid
// zero-discount outcome, not an error.
func lookupCode(codes []Code, applied string) (Code, bool) {
	applied = strings.TrimSpace(applied)
	if applied == "" {
		return Code{}, false
	}
	for _, c := range codes {
		if strings.EqualFold(c.Code, applied) {
			return c, true
		}
	}
	return Code{}, false
}

// percentOf rounds amount*percent/100 to the minor unit, half away from zero.
// Amounts and percents are non-negative here, so half-up is equivalent.
func percentOf(amount Money, percent int) Money {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return (amount*Money(percent) + 50) / 100
}

// allocate distributes the combined discount proportionally across lines.
// Each share is rounded half away from zero; the rounding remainder is applied
// to the last line so the shares sum exactly. The remainder can push a line
// outside [0, lineSubtotal] when subtotals are tiny, so the correction
// cascades towards the first line, keeping every line total non-negative.
func allocate(lines []LineTotals, subtotal, discount Money) {
	if subtotal <= 0 || discount <= 0 || len(lines) == 0 {
		return
	}
	var allocated Money
	for i := range lines {
		share := (2*discount*lines[i].Subtotal + subtotal) / (2 * subtotal)
		lines[i].Discount = share
		allocated += share
	}
	lines[len(lines)-1].Discount += discount - allocated
	for i := len(lines) - 1; i > 0; i-- {
		if over := lines[i].Discount - lines[i].Subtotal; over > 0 {
			lines[i].Discount = lines[i].Subtotal
			lines[i-1].Discount += over
		} else if lines[i].Discount < 0 {
			lines[i-1].Discount += lines[i].Discount
			lines[i].Discount = 0
		}
	}
	for i := range lines {
		lines[i].Total = lines[i].Subtotal - lines[i].Discount
		lines[i].UnitPriceAfter = float64(lines[i].Total) / float64(lines[i].Qty)
	}
}
