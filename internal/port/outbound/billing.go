package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/thumbforge/server/internal/model"
)

var ErrCacheMiss = errors.New("cache miss")

// CreditAccountDatabasePort defines credit account persistence operations.
type CreditAccountDatabasePort interface {
	// GetBalance returns the balance of a user. Users without an account have zero.
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)

	// Deduct subtracts up to amount, never going below zero, and returns what was taken.
	Deduct(ctx context.Context, userID uuid.UUID, amount int64) (int64, error)
}

// UsageRecordDatabasePort defines usage record persistence operations.
type UsageRecordDatabasePort interface {
	// Create records one metered charge.
	Create(ctx context.Context, record *model.UsageRecord) error
}

// CreditBalanceCachePort defines credit balance caching.
type CreditBalanceCachePort interface {
	// Get returns a cached balance or ErrCacheMiss.
	Get(ctx context.Context, userID uuid.UUID) (int64, error)

	// Set caches a balance.
	Set(ctx context.Context, userID uuid.UUID, balance int64, ttl time.Duration) error

	// Invalidate drops a cached balance.
	Invalidate(ctx context.Context, userID uuid.UUID) error
}
