package inbound

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thumbforge/server/internal/utils/billingflow"
)

// CreditBalanceOutput is the caller's spendable balance.
type CreditBalanceOutput struct {
	UserID  uuid.UUID `json:"userId"`
	Balance int64     `json:"balance"`
}

// BillingDomain defines the credit billing inbound port.
type BillingDomain interface {
	billingflow.CreditGate

	// GetBalance returns the balance of a user.
	GetBalance(ctx context.Context, userID uuid.UUID) (*CreditBalanceOutput, error)
}

// BillingHttpPort defines billing HTTP handlers.
type BillingHttpPort interface {
	// GetBalance returns the caller's credit balance.
	GetBalance(c *gin.Context)
}
