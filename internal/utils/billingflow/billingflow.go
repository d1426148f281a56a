package billingflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrBillingUnavailable  = errors.New("billing unavailable")
)

// TaskTypeThumbnail is the usage task type for thumbnail generations.
const TaskTypeThumbnail = "thumbnail_generation"

// CreditCheck is the result of a balance pre-check.
type CreditCheck struct {
	Allowed  bool
	Balance  int64
	Required int64
}

// UsageCharge describes one commit against a user's credits.
type UsageCharge struct {
	UserID       uuid.UUID
	GenerationID uuid.UUID
	TaskType     string
	Units        int64
	RequestID    string
}

// CreditGate checks a balance before paid work and commits usage after it.
// CheckCredits fails closed: any inability to read the balance is ErrBillingUnavailable.
type CreditGate interface {
	CheckCredits(ctx context.Context, userID uuid.UUID, amount int64) (*CreditCheck, error)
	CommitUsage(ctx context.Context, charge *UsageCharge) (charged int64, err error)
}

// Admit runs a credit check and turns a denial into ErrInsufficientCredits.
func Admit(ctx context.Context, gate CreditGate, userID uuid.UUID, amount int64) (*CreditCheck, error) {
	if amount <= 0 {
		return nil, ErrInvalidRequest
	}
	check, err := gate.CheckCredits(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, ErrBillingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBillingUnavailable, err)
	}
	if !check.Allowed {
		return check, ErrInsufficientCredits
	}
	return check, nil
}
