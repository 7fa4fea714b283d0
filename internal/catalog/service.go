package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/polkart/storefront-api/internal/pricing"
)

const listCacheKey = "catalog:products"

// Store abstracts product persistence so handlers and checkout can be tested
// without a database.
type Store interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	Upsert(ctx context.Context, p Product) error
	DecrementStock(ctx context.Context, id int64, qty int) error
}

// Service serves catalog reads through a read-through cache.
type Service struct {
	Store Store
	Cache *Cache
}

// List returns all products, preferring the cache.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	var cached []Product
	if hit, err := s.Cache.GetJSON(ctx, listCacheKey, &cached); err == nil && hit {
		return cached, nil
	}
	products, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.SetJSON(ctx, listCacheKey, products)
	return products, nil
}

// Resolve maps product ids to catalog entries. Every id must exist; a missing
// product is the caller's invalid-input case.
func (s *Service) Resolve(ctx context.Context, ids []int64) (map[int64]Product, error) {
	products, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	resolved := make(map[int64]Product, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		resolved[id] = p
	}
	return resolved, nil
}

// DecrementStock reduces on-hand stock after a paid order and drops the list
// cache so the storefront sees the new quantity.
func (s *Service) DecrementStock(ctx context.Context, id int64, qty int) error {
	if qty <= 0 {
		return nil
	}
	if err := s.Store.DecrementStock(ctx, id, qty); err != nil {
		return err
	}
	_ = s.Cache.Invalidate(ctx, listCacheKey)
	return nil
}

// seedFile mirrors the products.json layout, with prices in major units.
type seedFile struct {
	Products []struct {
		ID          int64   `json:"id"`
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		Image       string  `json:"image"`
		Stock       int     `json:"stock"`
	} `json:"products"`
}

// SeedFromFile loads products from a JSON seed file into the store and drops
// the list cache so the next read sees the fresh rows.
func (s *Service) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read product seed %s: %w", path, err)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse product seed %s: %w", path, err)
	}
	for _, raw := range seed.Products {
		if raw.Price < 0 {
			return 0, fmt.Errorf("product %d: negative price", raw.ID)
		}
		p := Product{
			ID:          raw.ID,
			Name:        raw.Name,
			Description: raw.Description,
			Price:       pricing.Money(math.Round(raw.Price * 100)),
			Image:       raw.Image,
			Stock:       raw.Stock,
		}
		if err := s.Store.Upsert(ctx, p); err != nil {
			return 0, err
		}
	}
	_ = s.Cache.Invalidate(ctx, listCacheKey)
	return len(seed.Products), nil
}
