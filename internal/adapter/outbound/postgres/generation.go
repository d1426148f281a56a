package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thumbforge/server/internal/model"
	"github.com/thumbforge/server/internal/port/outbound"
)

// --- Generation Job Database Adapter ---

// GenerationDBAdapter implements GenerationDatabasePort.
type GenerationDBAdapter struct {
	db *gorm.DB
}

// NewGenerationDBAdapter creates a new generation database adapter.
func NewGenerationDBAdapter(db *gorm.DB) *GenerationDBAdapter {
	return &GenerationDBAdapter{db: db}
}

func (a *GenerationDBAdapter) Create(ctx context.Context, job *model.GenerationJob) error {
	return a.db.WithContext(ctx).Omit("Outputs", "Inputs").Create(job).Error
}

func (a *GenerationDBAdapter) FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*model.GenerationJob, error) {
	var job model.GenerationJob
	err := a.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (a *GenerationDBAdapter) AppendInputs(ctx context.Context, jobID uuid.UUID, inputs []*model.GenerationInput) error {
	if len(inputs) == 0 {
		return nil
	}
	for _, in := range inputs {
		in.GenerationID = jobID
	}
	return a.db.WithContext(ctx).Create(&inputs).Error
}

// AppendOutputs inserts all rows in one statement so a call's outputs are
// recorded together or not at all.
func (a *GenerationDBAdapter) AppendOutputs(ctx context.Context, jobID uuid.UUID, outputs []*model.GenerationOutput) ([]*model.GenerationOutput, error) {
	if len(outputs) == 0 {
		return outputs, nil
	}
	for _, out := range outputs {
		out.GenerationID = jobID
	}
	if err := a.db.WithContext(ctx).Create(&outputs).Error; err != nil {
		return nil, err
	}
	return outputs, nil
}

// Finalize only updates a job that is still running. A job that already
// reached a terminal status yields ErrInvalidTransition.
func (a *GenerationDBAdapter) Finalize(ctx context.Context, jobID uuid.UUID, status model.GenerationStatus, errMsg *string) error {
	if !model.GenerationStatusRunning.CanTransitionTo(status) {
		return outbound.ErrInvalidTransition
	}
	result := a.db.WithContext(ctx).
		Model(&model.GenerationJob{}).
		Where("id = ? AND status = ?", jobID, model.GenerationStatusRunning).
		Updates(map[string]any{
			"status":        status,
			"error_message": errMsg,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return outbound.ErrInvalidTransition
	}
	return nil
}

func (a *GenerationDBAdapter) ListOutputs(ctx context.Context, jobID uuid.UUID) ([]*model.GenerationOutput, error) {
	var outputs []*model.GenerationOutput
	err := a.db.WithContext(ctx).
		Where("generation_id = ?", jobID).
		Order("variant_index ASC").
		Find(&outputs).Error
	if err != nil {
		return nil, err
	}
	return outputs, nil
}

var _ outbound.GenerationDatabasePort = (*GenerationDBAdapter)(nil)

// --- Template Database Adapter ---

// TemplateDBAdapter implements TemplateDatabasePort.
type TemplateDBAdapter struct {
	db *gorm.DB
}

// NewTemplateDBAdapter creates a new template database adapter.
func NewTemplateDBAdapter(db *gorm.DB) *TemplateDBAdapter {
	return &TemplateDBAdapter{db: db}
}

func (a *TemplateDBAdapter) FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*model.Template, error) {
	var tpl model.Template
	err := a.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&tpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tpl, nil
}

var _ outbound.TemplateDatabasePort = (*TemplateDBAdapter)(nil)
