package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order: not found")

// Repo persists orders and their line items in PostgreSQL.
type Repo struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRepo constructs an order repository.
func NewRepo(pool *pgxpool.Pool, logger zerolog.Logger) *Repo {
	return &Repo{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// Create stores the order and its items in one transaction.
func (r *Repo) Create(ctx context.Context, o Order, items []Item) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return fmt.Errorf("encode customer: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, number, status, currency, customer, applied_code,
			subtotal, tier_percent, tier_discount, code_percent, code_discount,
			total_discount, final_amount, session_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, o.ID, o.Number, o.Status, o.Currency, customer, o.AppliedCode,
		o.Subtotal, o.TierPercent, o.TierDiscount, o.CodePercent, o.CodeDiscount,
		o.TotalDiscount, o.FinalAmount, o.SessionID, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.Number, err)
	}

	for _, it := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (
				order_id, product_id, name, unit_price, qty, subtotal, discount, total
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, o.ID, it.ProductID, it.Name, it.UnitPrice, it.Qty, it.Subtotal, it.Discount, it.Total)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", it.ProductID, err)
		}
	}
	return tx.Commit(ctx)
}

// GetByNumber loads an order by its customer-facing number.
func (r *Repo) GetByNumber(ctx context.Context, number string) (Order, error) {
	var (
		o        Order
		customer []byte
		paidAt   *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, status, currency, customer, applied_code,
		       subtotal, tier_percent, tier_discount, code_percent, code_discount,
		       total_discount, final_amount, session_id, created_at, paid_at
		FROM orders
		WHERE number = $1
	`, number).Scan(&o.ID, &o.Number, &o.Status, &o.Currency, &customer, &o.AppliedCode,
		&o.Subtotal, &o.TierPercent, &o.TierDiscount, &o.CodePercent, &o.CodeDiscount,
		&o.TotalDiscount, &o.FinalAmount, &o.SessionID, &o.CreatedAt, &paidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("query order %s: %w", number, err)
	}
	if len(customer) > 0 {
		if err := json.Unmarshal(customer, &o.Customer); err != nil {
			return Order{}, fmt.Errorf("decode customer for %s: %w", number, err)
		}
	}
	o.PaidAt = paidAt
	return o, nil
}

// ListItems loads the line items of an order.
func (r *Repo) ListItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, product_id, name, unit_price, qty, subtotal, discount, total
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.Name, &it.UnitPrice, &it.Qty, &it.Subtotal, &it.Discount, &it.Total); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkStatus transitions a pending order to a terminal payment status. The
// update is idempotent: replayed webhooks find no pending row and change
// nothing.
func (r *Repo) MarkStatus(ctx context.Context, number, status string, when time.Time) (bool, error) {
	var paidAt any
	if status == StatusPaid {
		paidAt = when
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET status = $2, paid_at = COALESCE($3, paid_at)
		WHERE number = $1 AND status = $4
	`, number, status, paidAt, StatusPendingPayment)
	if err != nil {
		return false, fmt.Errorf("mark order %s %s: %w", number, status, err)
	}
	changed := tag.RowsAffected() > 0
	if !changed {
		r.logger.Debug().Str("order", number).Str("status", status).Msg("status transition skipped")
	}
	return changed, nil
}
