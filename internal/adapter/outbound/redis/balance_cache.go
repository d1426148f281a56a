package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/thumbforge/server/internal/port/outbound"
)

const balanceKeyPrefix = "billing:balance:"

// BalanceCacheAdapter implements CreditBalanceCachePort.
type BalanceCacheAdapter struct {
	client redis.UniversalClient
}

// NewBalanceCacheAdapter creates a new credit balance cache adapter.
func NewBalanceCacheAdapter(client redis.UniversalClient) *BalanceCacheAdapter {
	return &BalanceCacheAdapter{client: client}
}

func (a *BalanceCacheAdapter) key(userID uuid.UUID) string {
	return balanceKeyPrefix + userID.String()
}

func (a *BalanceCacheAdapter) Get(ctx context.Context, userID uuid.UUID) (int64, error) {
	val, err := a.client.Get(ctx, a.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, outbound.ErrCacheMiss
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return val, nil
}

func (a *BalanceCacheAdapter) Set(ctx context.Context, userID uuid.UUID, balance int64, ttl time.Duration) error {
	if err := a.client.Set(ctx, a.key(userID), balance, ttl).Err(); err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

func (a *BalanceCacheAdapter) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := a.client.Del(ctx, a.key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate balance: %w", err)
	}
	return nil
}

// Compile-time interface check
var _ outbound.CreditBalanceCachePort = (*BalanceCacheAdapter)(nil)
