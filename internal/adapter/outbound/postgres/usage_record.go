package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/thumbforge/server/internal/model"
	"github.com/thumbforge/server/internal/port/outbound"
)

// UsageRecordDBAdapter implements UsageRecordDatabasePort.
type UsageRecordDBAdapter struct {
	db *gorm.DB
}

// NewUsageRecordDBAdapter creates a new usage record database adapter.
func NewUsageRecordDBAdapter(db *gorm.DB) *UsageRecordDBAdapter {
	return &UsageRecordDBAdapter{db: db}
}

func (a *UsageRecordDBAdapter) Create(ctx context.Context, record *model.UsageRecord) error {
	return a.db.WithContext(ctx).Create(record).Error
}

var _ outbound.UsageRecordDatabasePort = (*UsageRecordDBAdapter)(nil)
