package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thumbforge/server/internal/model"
	"github.com/thumbforge/server/internal/port/inbound"
	"github.com/thumbforge/server/internal/port/outbound"
	"github.com/thumbforge/server/internal/utils/billingflow"
	"go.uber.org/zap"
)

// CheckCredits reports whether userID can afford amount credits.
// Any failure to read the balance is returned as ErrBillingUnavailable.
func (d *Domain) CheckCredits(ctx context.Context, userID uuid.UUID, amount int64) (*billingflow.CreditCheck, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUser
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	balance, err := d.balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billingflow.ErrBillingUnavailable, err)
	}

	return &billingflow.CreditCheck{
		Allowed:  balance >= amount,
		Balance:  balance,
		Required: amount,
	}, nil
}

// CommitUsage deducts charge.Units credits and records the usage.
// The deduction floors at zero; delivered work is never rolled back for billing.
func (d *Domain) CommitUsage(ctx context.Context, charge *billingflow.UsageCharge) (int64, error) {
	if charge == nil || charge.UserID == uuid.Nil {
		return 0, ErrInvalidUser
	}
	if charge.Units <= 0 {
		return 0, ErrInvalidAmount
	}
	taskType := strings.TrimSpace(charge.TaskType)
	if taskType == "" {
		taskType = billingflow.TaskTypeThumbnail
	}

	charged, err := d.accountDB.Deduct(ctx, charge.UserID, charge.Units)
	if err != nil {
		return 0, fmt.Errorf("deduct credits: %w", err)
	}
	if charged < charge.Units {
		d.logger.Warn("credit balance exhausted during commit",
			zap.String("user_id", charge.UserID.String()),
			zap.Int64("requested", charge.Units),
			zap.Int64("charged", charged),
		)
	}

	d.invalidate(ctx, charge.UserID)

	var generationID *uuid.UUID
	if charge.GenerationID != uuid.Nil {
		id := charge.GenerationID
		generationID = &id
	}
	record := &model.UsageRecord{
		UserID:       charge.UserID,
		GenerationID: generationID,
		Timestamp:    time.Now(),
		RequestID:    charge.RequestID,
		TaskType:     taskType,
		Units:        charge.Units,
		Charged:      charged,
	}
	if err := d.usageDB.Create(ctx, record); err != nil {
		// The deduction stands even if the audit row is lost.
		d.logger.Error("failed to record usage",
			zap.String("user_id", charge.UserID.String()),
			zap.String("generation_id", charge.GenerationID.String()),
			zap.Error(err),
		)
	}

	return charged, nil
}

// GetBalance returns the balance of a user.
func (d *Domain) GetBalance(ctx context.Context, userID uuid.UUID) (*inbound.CreditBalanceOutput, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUser
	}
	balance, err := d.balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billingflow.ErrBillingUnavailable, err)
	}
	return &inbound.CreditBalanceOutput{UserID: userID, Balance: balance}, nil
}

func (d *Domain) balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	if d.balanceCache != nil {
		cached, err := d.balanceCache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, outbound.ErrCacheMiss) {
			d.logger.Warn("balance cache read failed, falling back to database", zap.Error(err))
		}
	}

	balance, err := d.accountDB.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}

	if d.balanceCache != nil {
		if err := d.balanceCache.Set(ctx, userID, balance, d.config.BalanceCacheTTL); err != nil {
			d.logger.Warn("balance cache write failed", zap.Error(err))
		}
	}
	return balance, nil
}

func (d *Domain) invalidate(ctx context.Context, userID uuid.UUID) {
	if d.balanceCache == nil {
		return
	}
	if err := d.balanceCache.Invalidate(ctx, userID); err != nil {
		d.logger.Warn("balance cache invalidate failed", zap.Error(err))
	}
}
