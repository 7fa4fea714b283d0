package catalog

import "github.com/polkart/storefront-api/internal/pricing"

// Product is a storefront catalog entry. Price is stored in minor units.
type Product struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       pricing.Money `json:"price"`
	Image       string        `json:"image"`
	Stock       int           `json:"stock"`
}
