package model

import (
	"time"

	"github.com/google/uuid"
)

// GenerationStatus represents the lifecycle state of a generation job.
type GenerationStatus string

const (
	GenerationStatusPending  GenerationStatus = "pending"
	GenerationStatusRunning  GenerationStatus = "running"
	GenerationStatusComplete GenerationStatus = "complete"
	GenerationStatusFailed   GenerationStatus = "failed"
)

// IsTerminal returns true if no further transition is allowed.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusComplete || s == GenerationStatusFailed
}

// CanTransitionTo reports whether the forward-only state machine allows s -> next.
func (s GenerationStatus) CanTransitionTo(next GenerationStatus) bool {
	switch s {
	case GenerationStatusPending:
		return next == GenerationStatusRunning
	case GenerationStatusRunning:
		return next == GenerationStatusComplete || next == GenerationStatusFailed
	default:
		return false
	}
}

// GenerationJob is one user request producing up to VariantsRequested images.
type GenerationJob struct {
	ID                uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID           uuid.UUID        `json:"owner_id" gorm:"type:uuid;not null;index"`
	TemplateID        *uuid.UUID       `json:"template_id,omitempty" gorm:"type:uuid"`
	ParentID          *uuid.UUID       `json:"parent_id,omitempty" gorm:"type:uuid;index"`
	Prompt            string           `json:"prompt" gorm:"type:text;not null"`
	VariantsRequested int              `json:"variants_requested" gorm:"not null"`
	Status            GenerationStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	ErrorMessage      *string          `json:"error_message,omitempty" gorm:"type:text"`
	Source            string           `json:"source" gorm:"type:varchar(64);not null;default:'web'"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`

	Outputs []*GenerationOutput `json:"outputs,omitempty" gorm:"foreignKey:GenerationID;constraint:OnDelete:CASCADE"`
	Inputs  []*GenerationInput  `json:"-" gorm:"foreignKey:GenerationID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name.
func (GenerationJob) TableName() string {
	return "generation_jobs"
}

// GenerationOutput is one persisted image produced by a job.
type GenerationOutput struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	GenerationID uuid.UUID `json:"generation_id" gorm:"type:uuid;not null;uniqueIndex:idx_generation_outputs_variant"`
	VariantIndex int       `json:"variant_index" gorm:"not null;uniqueIndex:idx_generation_outputs_variant"`
	StorageKey   string    `json:"storage_key" gorm:"not null"`
	MimeType     string    `json:"mime_type" gorm:"type:varchar(32);not null"`
	ByteSize     int64     `json:"byte_size" gorm:"not null"`
	ContentHash  string    `json:"content_hash" gorm:"type:char(64);not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the table name.
func (GenerationOutput) TableName() string {
	return "generation_outputs"
}

// GenerationInputType names the kind of input recorded for a job.
type GenerationInputType string

const (
	GenerationInputFrame GenerationInputType = "frame"
)

// GenerationInputMetadata describes a source frame without storing its bytes.
type GenerationInputMetadata struct {
	Index       int    `json:"index"`
	SizeHint    int    `json:"size_hint"`
	MimeType    string `json:"mime_type"`
	SentToModel bool   `json:"sent_to_model"`
}

// GenerationInput records a reference to a source frame used by a job.
type GenerationInput struct {
	ID           uuid.UUID               `json:"id" gorm:"type:uuid;primaryKey"`
	GenerationID uuid.UUID               `json:"generation_id" gorm:"type:uuid;not null;index"`
	InputType    GenerationInputType     `json:"input_type" gorm:"type:varchar(16);not null"`
	Metadata     GenerationInputMetadata `json:"metadata" gorm:"type:jsonb;serializer:json"`
	CreatedAt    time.Time               `json:"created_at"`
}

// TableName returns the table name.
func (GenerationInput) TableName() string {
	return "generation_inputs"
}

// Template is a user-owned preset a generation can reference.
type Template struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID   uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name.
func (Template) TableName() string {
	return "templates"
}
