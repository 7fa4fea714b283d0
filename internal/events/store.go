package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists domain events in PostgreSQL.
type PGStore struct {
	Pool *pgxpool.Pool
}

// InsertDomainEvent implements Store.
func (s PGStore) InsertDomainEvent(ctx context.Context, ev DomainEvent) (DomainEvent, error) {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO domain_events (id, topic, order_number, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, ev.Topic, ev.OrderNumber, ev.Payload, ev.OccurredAt)
	if err != nil {
		return DomainEvent{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}
