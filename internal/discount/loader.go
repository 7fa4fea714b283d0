package discount

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/polkart/storefront-api/internal/pricing"
)

// fileTable mirrors the JSON layout of the discounts configuration file.
type fileTable struct {
	CartDiscountTiers []struct {
		Quantity int `json:"quantity"`
		Discount int `json:"discount"`
	} `json:"cartDiscountTiers"`
	DiscountCodes []struct {
		Code            string `json:"code"`
		Discount        int    `json:"discount"`
		InfluencerEmail string `json:"influencerEmail"`
	} `json:"discountCodes"`
}

// LoadFile reads and validates the discount table from a JSON file.
func LoadFile(path string, logger zerolog.Logger) (Table, error) {
	log := logger.With().Str("component", "discount-loader").Logger()
	log.Info().Str("file", path).Msg("loading discount table")

	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read discount table %s: %w", path, err)
	}
	table, err := Parse(data)
	if err != nil {
		return Table{}, fmt.Errorf("parse discount table %s: %w", path, err)
	}

	log.Info().
		Str("file", path).
		Int("tiers", len(table.Tiers)).
		Int("codes", len(table.Codes)).
		Msg("discount table loaded")
	return table, nil
}

// Parse decodes and validates discount configuration JSON.
func Parse(data []byte) (Table, error) {
	var raw fileTable
	if err := json.Unmarshal(data, &raw); err != nil {
		return Table{}, err
	}
	table := Table{
		Tiers: make([]pricing.Tier, 0, len(raw.CartDiscountTiers)),
		Codes: make([]pricing.Code, 0, len(raw.DiscountCodes)),
	}
	for _, tier := range raw.CartDiscountTiers {
		table.Tiers = append(table.Tiers, pricing.Tier{MinQty: tier.Quantity, Percent: tier.Discount})
	}
	for _, code := range raw.DiscountCodes {
		table.Codes = append(table.Codes, pricing.Code{
			Code:    code.Code,
			Percent: code.Discount,
			Contact: code.InfluencerEmail,
		})
	}
	if err := table.Validate(); err != nil {
		return Table{}, err
	}
	return table, nil
}
