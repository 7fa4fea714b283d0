package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Dedupe guards each (order, kind, recipient) notification with a durable
// Redis marker so restarts and concurrent workers cannot double-send.
type Dedupe struct {
	R   *redis.Client
	TTL time.Duration
}

// Acquire claims the notification slot. It returns true when the caller is
// the first to claim it and should proceed with the send.
func (d Dedupe) Acquire(ctx context.Context, orderNumber, kind, recipient string) (bool, error) {
	if d.R == nil {
		return true, nil
	}
	ttl := d.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	ok, err := d.R.SetNX(ctx, d.key(orderNumber, kind, recipient), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("notify dedupe: %w", err)
	}
	return ok, nil
}

// Release frees the slot so a failed send can be retried.
func (d Dedupe) Release(ctx context.Context, orderNumber, kind, recipient string) error {
	if d.R == nil {
		return nil
	}
	return d.R.Del(ctx, d.key(orderNumber, kind, recipient)).Err()
}

func (d Dedupe) key(orderNumber, kind, recipient string) string {
	return fmt.Sprintf("notify:sent:%s:%s:%s", orderNumber, kind, strings.ToLower(strings.TrimSpace(recipient)))
}
