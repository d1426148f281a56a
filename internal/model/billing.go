package model

import (
	"time"

	"github.com/google/uuid"
)

// CreditAccount holds the spendable credit balance of a user.
type CreditAccount struct {
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	Balance   int64     `json:"balance" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (CreditAccount) TableName() string {
	return "credit_accounts"
}

// UsageRecord records one metered charge.
type UsageRecord struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	GenerationID *uuid.UUID `json:"generation_id,omitempty" gorm:"type:uuid;index"`
	Timestamp    time.Time  `json:"timestamp" gorm:"not null;index"`
	RequestID    string     `json:"request_id" gorm:"not null"`
	TaskType     string     `json:"task_type" gorm:"not null"`
	Units        int64      `json:"units" gorm:"not null"`
	Charged      int64      `json:"charged" gorm:"not null"`
}

// TableName returns the database table name.
func (UsageRecord) TableName() string {
	return "usage_records"
}
