package discount

import (
	"fmt"
	"strings"

	"github.com/polkart/storefront-api/internal/pricing"
)

// Table is the static discount configuration: the quantity tier table and the
// redeemable code table. It is loaded once at startup and treated as an
// immutable snapshot afterwards, so it is safe to share across requests.
type Table struct {
	Tiers []pricing.Tier
	Codes []pricing.Code
}

// Validate checks the structural integrity of the table. A malformed table is
// a configuration error and must abort startup.
func (t Table) Validate() error {
	seenQty := make(map[int]bool, len(t.Tiers))
	for i, tier := range t.Tiers {
		if tier.MinQty < 1 {
			return fmt.Errorf("tier %d: minimum quantity must be at least 1", i)
		}
		if tier.Percent < 0 || tier.Percent > 100 {
			return fmt.Errorf("tier %d: percent %d outside 0-100", i, tier.Percent)
		}
		if seenQty[tier.MinQty] {
			return fmt.Errorf("tier %d: duplicate minimum quantity %d", i, tier.MinQty)
		}
		seenQty[tier.MinQty] = true
	}
	seenCode := make(map[string]bool, len(t.Codes))
	for i, code := range t.Codes {
		normalized := strings.ToUpper(strings.TrimSpace(code.Code))
		if normalized == "" {
			return fmt.Errorf("code %d: empty code", i)
		}
		if code.Percent < 0 || code.Percent > 100 {
			return fmt.Errorf("code %q: percent %d outside 0-100", code.Code, code.Percent)
		}
		if seenCode[normalized] {
			return fmt.Errorf("code %q: duplicate code", code.Code)
		}
		seenCode[normalized] = true
	}
	return nil
}

// Lookup resolves a code case-insensitively. The bool result reports whether
// the code exists; a miss is a zero-discount outcome for the caller.
func (t Table) Lookup(code string) (pricing.Code, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return pricing.Code{}, false
	}
	for _, c := range t.Codes {
		if strings.EqualFold(c.Code, code) {
			return c, true
		}
	}
	return pricing.Code{}, false
}
