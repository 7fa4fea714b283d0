package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var testTiers = []Tier{
	{MinQty: 3, Percent: 10},
	{MinQty: 6, Percent: 15},
}

var testCodes = []Code{
	{Code: "SAVE20", Percent: 20},
	{Code: "ANIA10", Percent: 10, Contact: "ania@example.com"},
}

func TestComputeTierDiscount(t *testing.T) {
	items := []LineItem{
		{ProductID: 1, UnitPrice: 10000, Qty: 2},
		{ProductID: 2, UnitPrice: 5000, Qty: 1},
	}
	totals, err := Compute(items, testTiers, testCodes, "")
	require.NoError(t, err)
	require.Equal(t, Money(25000), totals.Subtotal)
	require.Equal(t, 3, totals.TotalQty)
	require.Equal(t, 10, totals.TierPercent)
	require.Equal(t, Money(2500), totals.TierDiscount)
	require.Equal(t, Money(0), totals.CodeDiscount)
	require.Equal(t, Money(2500), totals.TotalDiscount)
	require.Equal(t, Money(22500), totals.FinalAmount)

	require.Len(t, totals.Lines, 2)
	require.Equal(t, Money(2000), totals.Lines[0].Discount)
	require.Equal(t, Money(500), totals.Lines[1].Discount)
	require.Equal(t, Money(18000), totals.Lines[0].Total)
	require.Equal(t, Money(4500), totals.Lines[1].Total)
}

func TestComputeTierAndCodeAdditive(t *testing.T) {
	items := []LineItem{
		{ProductID: 1, UnitPrice: 10000, Qty: 2},
		{ProductID: 2, UnitPrice: 5000, Qty: 1},
	}
	totals, err := Compute(items, testTiers, testCodes, "SAVE20")
	require.NoError(t, err)
	require.Equal(t, Money(2500), totals.TierDiscount)
	require.Equal(t, Money(5000), totals.CodeDiscount)
	require.Equal(t, Money(7500), totals.TotalDiscount)
	require.Equal(t, Money(17500), totals.FinalAmount)
	require.Equal(t, "SAVE20", totals.AppliedCode)
	require.Empty(t, totals.Contact)
}

func TestComputeRoundingSingleLine(t *testing.T) {
	items := []LineItem{{ProductID: 7, UnitPrice: 19999, Qty: 3}}
	totals, err := Compute(items, []Tier{{MinQty: 3, Percent: 33}}, nil, "")
	require.NoError(t, err)
	require.Equal(t, Money(59997), totals.Subtotal)
	// 599.97 * 33% = 197.9901 -> 197.99 half away from zero
	require.Equal(t, Money(19799), totals.TierDiscount)
	require.Equal(t, Money(19799), totals.Lines[0].Discount)
	require.Equal(t, totals.TotalDiscount, totals.Lines[0].Discount)
	require.Equal(t, totals.FinalAmount, totals.Lines[0].Total)
}

func TestComputeEmptyCart(t *testing.T) {
	totals, err := Compute(nil, testTiers, testCodes, "SAVE20")
	require.NoError(t, err)
	require.Equal(t, Money(0), totals.Subtotal)
	require.Equal(t, Money(0), totals.TotalDiscount)
	require.Equal(t, Money(0), totals.FinalAmount)
	require.Empty(t, totals.Lines)
}

func TestComputeUnknownCodeIsSilent(t *testing.T) {
	items := []LineItem{{ProductID: 1, UnitPrice: 10000, Qty: 1}}
	withUnknown, err := Compute(items, testTiers, testCodes, "NOPE")
	require.NoError(t, err)
	withoutCode, err := Compute(items, testTiers, testCodes, "")
	require.NoError(t, err)
	require.Equal(t, withoutCode, withUnknown)
	require.Empty(t, withUnknown.AppliedCode)
	require.Empty(t, withUnknown.Contact)
}

func TestComputeCodeLookupIsCaseInsensitive(t *testing.T) {
	items := []LineItem{{ProductID: 1, UnitPrice: 10000, Qty: 1}}
	totals, err := Compute(items, nil, testCodes, "ania10")
	require.NoError(t, err)
	require.Equal(t, 10, totals.CodePercent)
	require.Equal(t, "ANIA10", totals.AppliedCode)
	require.Equal(t, "ania@example.com", totals.Contact)
}

func TestComputeClampsToSubtotal(t *testing.T) {
	items := []LineItem{
		{ProductID: 1, UnitPrice: 2500, Qty: 2},
		{ProductID: 2, UnitPrice: 5000, Qty: 1},
	}
	tiers := []Tier{{MinQty: 3, Percent: 40}}
	codes := []Code{{Code: "VIP90", Percent: 90}}
	totals, err := Compute(items, tiers, codes, "VIP90")
	require.NoError(t, err)
	require.Equal(t, Money(10000), totals.Subtotal)
	require.Equal(t, totals.Subtotal, totals.TotalDiscount)
	require.Equal(t, Money(0), totals.FinalAmount)
	for _, line := range totals.Lines {
		require.GreaterOrEqual(t, line.Total, Money(0))
	}
}

func TestComputeInvalidInput(t *testing.T) {
	_, err := Compute([]LineItem{{ProductID: 1, UnitPrice: 100, Qty: 0}}, nil, nil, "")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = Compute([]LineItem{{ProductID: 1, UnitPrice: -1, Qty: 1}}, nil, nil, "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestComputeDeterministic(t *testing.T) {
	items := []LineItem{
		{ProductID: 1, UnitPrice: 3333, Qty: 2},
		{ProductID: 2, UnitPrice: 7777, Qty: 3},
		{ProductID: 3, UnitPrice: 101, Qty: 1},
	}
	first, err := Compute(items, testTiers, testCodes, "save20")
	require.NoError(t, err)
	second, err := Compute(items, testTiers, testCodes, "save20")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestComputeReconciliation(t *testing.T) {
	carts := [][]LineItem{
		{{ProductID: 1, UnitPrice: 3333, Qty: 1}, {ProductID: 2, UnitPrice: 3333, Qty: 1}, {ProductID: 3, UnitPrice: 3334, Qty: 1}},
		{{ProductID: 1, UnitPrice: 1, Qty: 1}, {ProductID: 2, UnitPrice: 1, Qty: 1}, {ProductID: 3, UnitPrice: 1, Qty: 1}},
		{{ProductID: 1, UnitPrice: 19999, Qty: 7}, {ProductID: 2, UnitPrice: 50, Qty: 2}},
		{{ProductID: 1, UnitPrice: 100000, Qty: 1}},
	}
	for _, items := range carts {
		for _, code := range []string{"", "SAVE20", "ANIA10"} {
			totals, err := Compute(items, testTiers, testCodes, code)
			require.NoError(t, err)
			var discountSum, totalSum Money
			for _, line := range totals.Lines {
				discountSum += line.Discount
				totalSum += line.Total
			}
			require.Equal(t, totals.TotalDiscount, discountSum, "items=%v code=%q", items, code)
			require.Equal(t, totals.FinalAmount, totalSum, "items=%v code=%q", items, code)
		}
	}
}

func TestComputeTinySubtotalLinesStayNonNegative(t *testing.T) {
	// Rounding every share of a large discount to zero used to drop the whole
	// remainder on the last line, driving its total below zero.
	items := []LineItem{
		{ProductID: 1, UnitPrice: 1, Qty: 1},
		{ProductID: 2, UnitPrice: 1, Qty: 1},
		{ProductID: 3, UnitPrice: 1, Qty: 1},
		{ProductID: 4, UnitPrice: 1, Qty: 1},
		{ProductID: 5, UnitPrice: 1, Qty: 1},
	}
	totals, err := Compute(items, []Tier{{MinQty: 5, Percent: 40}}, nil, "")
	require.NoError(t, err)
	require.Equal(t, Money(5), totals.Subtotal)
	require.Equal(t, Money(2), totals.TotalDiscount)

	var discountSum Money
	for i, line := range totals.Lines {
		require.GreaterOrEqual(t, line.Total, Money(0), "line %d total negative", i)
		require.GreaterOrEqual(t, line.Discount, Money(0), "line %d discount negative", i)
		require.LessOrEqual(t, line.Discount, line.Subtotal, "line %d discount exceeds subtotal", i)
		discountSum += line.Discount
	}
	require.Equal(t, totals.TotalDiscount, discountSum)
}

func TestComputeLineTotalsNonNegativeProperty(t *testing.T) {
	prices := []Money{1, 2, 3, 7, 49, 100, 3333}
	percents := []int{1, 9, 10, 33, 40, 50, 99, 100}
	for lineCount := 1; lineCount <= 6; lineCount++ {
		for _, price := range prices {
			for _, percent := range percents {
				items := make([]LineItem, 0, lineCount)
				for i := 0; i < lineCount; i++ {
					// Mix the tiny price with a larger one so shares round unevenly.
					unit := price
					if i%2 == 1 {
						unit = price * 13
					}
					items = append(items, LineItem{ProductID: int64(i + 1), UnitPrice: unit, Qty: 1})
				}
				totals, err := Compute(items, []Tier{{MinQty: 1, Percent: percent}}, nil, "")
				require.NoError(t, err)
				var discountSum, totalSum Money
				for i, line := range totals.Lines {
					require.GreaterOrEqual(t, line.Total, Money(0),
						"lines=%d price=%d percent=%d line=%d", lineCount, price, percent, i)
					require.GreaterOrEqual(t, line.Discount, Money(0),
						"lines=%d price=%d percent=%d line=%d", lineCount, price, percent, i)
					require.LessOrEqual(t, line.Discount, line.Subtotal,
						"lines=%d price=%d percent=%d line=%d", lineCount, price, percent, i)
					discountSum += line.Discount
					totalSum += line.Total
				}
				require.Equal(t, totals.TotalDiscount, discountSum)
				require.Equal(t, totals.FinalAmount, totalSum)
			}
		}
	}
}

func TestComputeQuantityMonotonic(t *testing.T) {
	previous := 0
	for qty := 1; qty <= 12; qty++ {
		totals, err := Compute([]LineItem{{ProductID: 1, UnitPrice: 1000, Qty: qty}}, testTiers, nil, "")
		require.NoError(t, err)
		require.GreaterOrEqual(t, totals.TierPercent, previous, "qty=%d", qty)
		previous = totals.TierPercent
	}
}

func TestMatchTierPicksHighestMet(t *testing.T) {
	tiers := []Tier{
		{MinQty: 10, Percent: 20},
		{MinQty: 3, Percent: 10},
		{MinQty: 6, Percent: 15},
	}
	require.Equal(t, 0, matchTier(tiers, 2))
	require.Equal(t, 10, matchTier(tiers, 3))
	require.Equal(t, 15, matchTier(tiers, 9))
	require.Equal(t, 20, matchTier(tiers, 40))
}

func TestPercentOfRoundsHalfUp(t *testing.T) {
	// 1.25 * 10% = 0.125 -> 0.13
	require.Equal(t, Money(13), percentOf(125, 10))
	// 0.50 * 1% = 0.005 -> 0.01
	require.Equal(t, Money(1), percentOf(50, 1))
	require.Equal(t, Money(0), percentOf(0, 50))
	require.Equal(t, Money(0), percentOf(100, 0))
}
