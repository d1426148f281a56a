package outbound

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/thumbforge/server/internal/model"
)

// ErrInvalidTransition is returned when a job is no longer in the state a write expects.
var ErrInvalidTransition = errors.New("invalid generation status transition")

// GenerationDatabasePort defines generation job persistence operations.
type GenerationDatabasePort interface {
	// Create inserts a new job row.
	Create(ctx context.Context, job *model.GenerationJob) error

	// FindOwned gets a job by ID if it belongs to ownerID. Returns nil, nil when absent.
	FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*model.GenerationJob, error)

	// AppendInputs records input references for a job.
	AppendInputs(ctx context.Context, jobID uuid.UUID, inputs []*model.GenerationInput) error

	// AppendOutputs inserts outputs in one statement and returns the persisted rows.
	AppendOutputs(ctx context.Context, jobID uuid.UUID, outputs []*model.GenerationOutput) ([]*model.GenerationOutput, error)

	// Finalize moves a running job to a terminal status.
	Finalize(ctx context.Context, jobID uuid.UUID, status model.GenerationStatus, errMsg *string) error

	// ListOutputs lists the outputs of a job ordered by variant index.
	ListOutputs(ctx context.Context, jobID uuid.UUID) ([]*model.GenerationOutput, error)
}

// TemplateDatabasePort defines template lookups.
type TemplateDatabasePort interface {
	// FindOwned gets a template by ID if it belongs to ownerID. Returns nil, nil when absent.
	FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*model.Template, error)
}
