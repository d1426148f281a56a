package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thumbforge/server/internal/model"
	"github.com/thumbforge/server/internal/port/inbound"
	"github.com/thumbforge/server/internal/port/outbound"
	"github.com/thumbforge/server/internal/utils/billingflow"
	"github.com/thumbforge/server/internal/utils/metrics"
	"github.com/thumbforge/server/internal/utils/requestctx"
	"go.uber.org/zap"
)

// Domain implements thumbnail generation: admission, batched provider fan-out,
// output persistence and billing.
type Domain struct {
	generationDB outbound.GenerationDatabasePort
	templateDB   outbound.TemplateDatabasePort
	provider     outbound.ImageProviderPort
	storage      outbound.ObjectStoragePort
	credits      billingflow.CreditGate
	validator    *Validator
	orchestrator *Orchestrator
	finalizer    *Finalizer
	config       *Config
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewDomain creates a new generation domain. Missing bindings are reported by
// Start as ErrNotConfigured rather than at construction time.
func NewDomain(
	generationDB outbound.GenerationDatabasePort,
	templateDB outbound.TemplateDatabasePort,
	provider outbound.ImageProviderPort,
	storage outbound.ObjectStoragePort,
	credits billingflow.CreditGate,
	config *Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Domain {
	if config == nil {
		config = DefaultConfig()
	}
	config = config.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("generation")

	persister := NewPersister(storage, config.MaxOutputBytes, m)
	return &Domain{
		generationDB: generationDB,
		templateDB:   templateDB,
		provider:     provider,
		storage:      storage,
		credits:      credits,
		validator:    NewValidator(templateDB, generationDB, config.MaxVariants),
		orchestrator: NewOrchestrator(provider, persister, generationDB, config, m, logger),
		finalizer:    NewFinalizer(generationDB, credits, config, m, logger),
		config:       config,
		metrics:      m,
		logger:       logger,
	}
}

// Start validates input, admits the request against the caller's credits and
// records a running job. Nothing is persisted when it returns an error.
func (d *Domain) Start(ctx context.Context, ownerID uuid.UUID, input *inbound.GenerationInput) (*inbound.GenerationSession, error) {
	if d.generationDB == nil || d.provider == nil || d.storage == nil || d.credits == nil {
		return nil, ErrNotConfigured
	}

	spec, err := d.validator.Validate(ctx, ownerID, input)
	if err != nil {
		return nil, err
	}

	cost := int64(spec.Variants) * d.config.CreditsPerVariant
	check, err := billingflow.Admit(ctx, d.credits, ownerID, cost)
	if err != nil {
		if errors.Is(err, billingflow.ErrInsufficientCredits) && check != nil {
			return nil, &CreditDeniedError{Balance: check.Balance, Required: check.Required}
		}
		d.metrics.RecordBillingError("check")
		d.logger.Error("credit check failed",
			zap.String("user_id", ownerID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	now := time.Now()
	job := &model.GenerationJob{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		TemplateID:        spec.TemplateID,
		ParentID:          spec.ParentID,
		Prompt:            spec.Prompt,
		VariantsRequested: spec.Variants,
		Status:            model.GenerationStatusRunning,
		Source:            spec.Source,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := d.generationDB.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordCreate, err)
	}

	d.recordInputs(ctx, job.ID, spec.Frames)
	d.metrics.JobStarted()

	d.logger.Info("generation started",
		zap.String("generation_id", job.ID.String()),
		zap.String("user_id", ownerID.String()),
		zap.Int("variants", spec.Variants),
		zap.Int("frames", len(spec.Frames)),
		zap.Int64("cost", cost),
	)

	return &inbound.GenerationSession{
		Job:         job,
		Frames:      spec.Frames,
		CreditsCost: cost,
		RequestID:   requestctx.RequestID(ctx),
	}, nil
}

// recordInputs stores frame references. A failure here does not abort the job.
func (d *Domain) recordInputs(ctx context.Context, jobID uuid.UUID, frames []inbound.SourceFrame) {
	inputs := make([]*model.GenerationInput, 0, len(frames))
	for i, f := range frames {
		inputs = append(inputs, &model.GenerationInput{
			ID:           uuid.New(),
			GenerationID: jobID,
			InputType:    model.GenerationInputFrame,
			Metadata: model.GenerationInputMetadata{
				Index:       i,
				SizeHint:    len(f.Data),
				MimeType:    f.MimeType,
				SentToModel: i < d.config.MaxSourceImages,
			},
		})
	}
	if err := d.generationDB.AppendInputs(ctx, jobID, inputs); err != nil {
		d.logger.Warn("failed to record generation inputs",
			zap.String("generation_id", jobID.String()),
			zap.Error(err),
		)
	}
}

// Run executes a started job. The sink always sees start first and exactly one
// done last; a fatal failure adds an error event right before done.
func (d *Domain) Run(ctx context.Context, session *inbound.GenerationSession, sink inbound.EventSink) *inbound.RunResult {
	started := time.Now()
	job := session.Job

	tally, fatal := d.orchestrator.Run(ctx, session, sink)
	if fatal != nil {
		d.logger.Error("generation failed",
			zap.String("generation_id", job.ID.String()),
			zap.Error(fatal),
		)
	}

	result := d.finalizer.Finalize(ctx, session, tally, fatal)
	d.metrics.JobFinished(string(result.Status), time.Since(started))

	if fatal != nil {
		sink.Emit(inbound.ErrorEvent{
			Type:         inbound.EventError,
			Message:      firstLine(fatal.Error()),
			GenerationID: job.ID,
		})
	}
	sink.Emit(inbound.DoneEvent{Type: inbound.EventDone, GenerationID: job.ID})

	d.logger.Info("generation finished",
		zap.String("generation_id", job.ID.String()),
		zap.String("status", string(result.Status)),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int64("charged", result.Charged),
		zap.Duration("duration", time.Since(started)),
	)
	return result
}

// GetGeneration returns a job owned by ownerID with its persisted outputs.
func (d *Domain) GetGeneration(ctx context.Context, ownerID, jobID uuid.UUID) (*inbound.GenerationView, error) {
	if d.generationDB == nil {
		return nil, ErrNotConfigured
	}
	job, err := d.generationDB.FindOwned(ctx, jobID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("find generation: %w", err)
	}
	if job == nil {
		return nil, ErrGenerationNotFound
	}

	outputs, err := d.generationDB.ListOutputs(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}

	view := &inbound.GenerationView{
		ID:                job.ID,
		Status:            job.Status,
		Prompt:            job.Prompt,
		VariantsRequested: job.VariantsRequested,
		ErrorMessage:      job.ErrorMessage,
		TemplateID:        job.TemplateID,
		ParentID:          job.ParentID,
		Outputs:           make([]*inbound.GenerationOutputView, 0, len(outputs)),
		CreatedAt:         job.CreatedAt.Unix(),
		UpdatedAt:         job.UpdatedAt.Unix(),
	}
	for _, out := range outputs {
		view.Outputs = append(view.Outputs, &inbound.GenerationOutputView{
			ID:           out.ID,
			VariantIndex: out.VariantIndex,
			StorageKey:   out.StorageKey,
			MimeType:     out.MimeType,
			ByteSize:     out.ByteSize,
			ContentHash:  out.ContentHash,
		})
	}
	return view, nil
}

// Compile-time interface check
var _ inbound.GenerationDomain = (*Domain)(nil)
