package billing

import (
	"time"

	"github.com/thumbforge/server/internal/port/inbound"
	"github.com/thumbforge/server/internal/port/outbound"
	"go.uber.org/zap"
)

// Config holds billing domain configuration.
type Config struct {
	BalanceCacheTTL time.Duration
}

// DefaultConfig returns default billing configuration.
func DefaultConfig() *Config {
	return &Config{
		BalanceCacheTTL: 30 * time.Second,
	}
}

// Domain implements credit billing: balance checks before paid work and
// usage commits after it.
type Domain struct {
	accountDB    outbound.CreditAccountDatabasePort
	usageDB      outbound.UsageRecordDatabasePort
	balanceCache outbound.CreditBalanceCachePort
	config       *Config
	logger       *zap.Logger
}

// NewBillingDomain creates a new billing domain service.
// balanceCache may be nil, in which case every check reads the database.
func NewBillingDomain(
	accountDB outbound.CreditAccountDatabasePort,
	usageDB outbound.UsageRecordDatabasePort,
	balanceCache outbound.CreditBalanceCachePort,
	config *Config,
	logger *zap.Logger,
) *Domain {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Domain{
		accountDB:    accountDB,
		usageDB:      usageDB,
		balanceCache: balanceCache,
		config:       config,
		logger:       logger.Named("billing"),
	}
}

// Compile-time interface check
var _ inbound.BillingDomain = (*Domain)(nil)
