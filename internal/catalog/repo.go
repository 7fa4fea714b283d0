package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a product does not exist in the catalog.
var ErrNotFound = errors.New("catalog: product not found")

// Repo persists products in PostgreSQL.
type Repo struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRepo constructs a product repository.
func NewRepo(pool *pgxpool.Pool, logger zerolog.Logger) *Repo {
	return &Repo{
		pool:   pool,
		logger: logger.With().Str("repository", "catalog").Logger(),
	}
}

// List returns all products ordered by id.
func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, price, image, stock
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Image, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// Get returns a single product by id.
func (r *Repo) Get(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, price, image, stock
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Image, &p.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("query product %d: %w", id, err)
	}
	return p, nil
}

// Upsert inserts or updates a product. Used by the seeder.
func (r *Repo) Upsert(ctx context.Context, p Product) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (id, name, description, price, image, stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    price = EXCLUDED.price,
		    image = EXCLUDED.image,
		    stock = EXCLUDED.stock
	`, p.ID, p.Name, p.Description, p.Price, p.Image, p.Stock)
	if err != nil {
		r.logger.Error().Err(err).Int64("product_id", p.ID).Msg("upsert product")
		return fmt.Errorf("upsert product %d: %w", p.ID, err)
	}
	return nil
}

// DecrementStock reduces a product's stock by qty, never below zero.
func (r *Repo) DecrementStock(ctx context.Context, id int64, qty int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products
		SET stock = GREATEST(stock - $2, 0)
		WHERE id = $1
	`, id, qty)
	if err != nil {
		return fmt.Errorf("decrement stock for product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
