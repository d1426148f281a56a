package billingflow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGate struct {
	check *CreditCheck
	err   error
}

func (s *stubGate) CheckCredits(ctx context.Context, userID uuid.UUID, amount int64) (*CreditCheck, error) {
	return s.check, s.err
}

func (s *stubGate) CommitUsage(ctx context.Context, charge *UsageCharge) (int64, error) {
	return charge.Units, nil
}

func TestAdmit(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("allowed", func(t *testing.T) {
		gate := &stubGate{check: &CreditCheck{Allowed: true, Balance: 10, Required: 4}}
		check, err := Admit(ctx, gate, userID, 4)
		require.NoError(t, err)
		assert.Equal(t, int64(10), check.Balance)
	})

	t.Run("denied", func(t *testing.T) {
		gate := &stubGate{check: &CreditCheck{Allowed: false, Balance: 1, Required: 4}}
		check, err := Admit(ctx, gate, userID, 4)
		assert.ErrorIs(t, err, ErrInsufficientCredits)
		require.NotNil(t, check)
		assert.Equal(t, int64(1), check.Balance)
	})

	t.Run("gate failure fails closed", func(t *testing.T) {
		gate := &stubGate{err: errors.New("dial tcp: refused")}
		_, err := Admit(ctx, gate, userID, 4)
		assert.ErrorIs(t, err, ErrBillingUnavailable)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		_, err := Admit(ctx, &stubGate{}, userID, 0)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}
