package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thumbforge/server/internal/model"
	"github.com/thumbforge/server/internal/port/outbound"
)

// CreditAccountDBAdapter implements CreditAccountDatabasePort.
type CreditAccountDBAdapter struct {
	db *gorm.DB
}

// NewCreditAccountDBAdapter creates a new credit account database adapter.
func NewCreditAccountDBAdapter(db *gorm.DB) *CreditAccountDBAdapter {
	return &CreditAccountDBAdapter{db: db}
}

// GetBalance returns 0 for users without an account row.
func (a *CreditAccountDBAdapter) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var account model.CreditAccount
	if err := a.db.WithContext(ctx).First(&account, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.Balance, nil
}

// Deduct takes up to amount credits under a row lock and returns what was taken.
func (a *CreditAccountDBAdapter) Deduct(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	var taken int64
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account model.CreditAccount
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&account, "user_id = ?", userID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		taken = min(account.Balance, amount)
		if taken <= 0 {
			taken = 0
			return nil
		}
		return tx.Model(&model.CreditAccount{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance - ?", taken),
				"updated_at": time.Now(),
			}).Error
	})
	if err != nil {
		return 0, err
	}
	return taken, nil
}

var _ outbound.CreditAccountDatabasePort = (*CreditAccountDBAdapter)(nil)
