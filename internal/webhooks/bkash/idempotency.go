package bkashwebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rakibulhasan-dev/bazarly-backend/pkg/redis"
)

const (
	guardScope      = "webhook:bkash"
	defaultGuardTTL = 24 * time.Hour
)

// Guard deduplicates webhook deliveries across processes. SetNX with a TTL
// is the whole mechanism: redis expiry replaces any sweeping, and every API
// replica shares the same seen-set.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Seen marks the event id and reports whether it was already marked. The
// mark is taken before processing; callers must Forget on processing
// failure so the provider's retry is not swallowed.
func (g *Guard) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(guardScope, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook event: %w", err)
	}
	return !set, nil
}

// Forget releases the mark so a redelivery can be processed.
func (g *Guard) Forget(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(guardScope, eventID))
}
