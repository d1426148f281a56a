package generation

import (
	"context"
	"errors"

	"github.com/thumbforge/server/internal/model"
	"github.com/thumbforge/server/internal/port/inbound"
	"github.com/thumbforge/server/internal/port/outbound"
	"github.com/thumbforge/server/internal/utils/billingflow"
	"github.com/thumbforge/server/internal/utils/metrics"
	"go.uber.org/zap"
)

// Finalizer writes the terminal job status and commits usage.
type Finalizer struct {
	generationDB outbound.GenerationDatabasePort
	credits      billingflow.CreditGate
	config       *Config
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewFinalizer creates a job finalizer.
func NewFinalizer(
	generationDB outbound.GenerationDatabasePort,
	credits billingflow.CreditGate,
	config *Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Finalizer {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finalizer{
		generationDB: generationDB,
		credits:      credits,
		config:       config.withDefaults(),
		metrics:      m,
		logger:       logger,
	}
}

// Finalize runs on a context detached from the caller so that a client
// disconnect cannot skip the status write or the usage commit. Failures are
// logged and never surface to the stream.
func (f *Finalizer) Finalize(ctx context.Context, session *inbound.GenerationSession, tally *runTally, fatal error) *inbound.RunResult {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.config.FinalizeTimeout)
	defer cancel()

	job := session.Job
	_, succeeded, failed := tally.snapshot()

	result := &inbound.RunResult{
		Status:     model.GenerationStatusComplete,
		Succeeded:  succeeded,
		Failed:     failed,
		FatalError: fatal,
	}
	var errMsg *string
	if fatal != nil {
		msg := firstLine(fatal.Error())
		errMsg = &msg
		result.Status = model.GenerationStatusFailed
	}

	if err := f.generationDB.Finalize(ctx, job.ID, result.Status, errMsg); err != nil {
		if errors.Is(err, outbound.ErrInvalidTransition) {
			// Already terminal: someone else finalized and billed this job.
			f.logger.Warn("generation already finalized",
				zap.String("generation_id", job.ID.String()),
			)
			return result
		}
		f.logger.Error("failed to finalize generation",
			zap.String("generation_id", job.ID.String()),
			zap.String("status", string(result.Status)),
			zap.Error(err),
		)
	}

	result.Charged = f.commit(ctx, session, succeeded)
	return result
}

func (f *Finalizer) commit(ctx context.Context, session *inbound.GenerationSession, succeeded int) int64 {
	job := session.Job
	units := f.chargeAmount(session, succeeded)
	if units <= 0 {
		return 0
	}
	if f.credits == nil {
		f.logger.Error("usage not committed, billing is not configured",
			zap.String("generation_id", job.ID.String()),
			zap.Int64("units", units),
		)
		return 0
	}

	charged, err := f.credits.CommitUsage(ctx, &billingflow.UsageCharge{
		UserID:       job.OwnerID,
		GenerationID: job.ID,
		TaskType:     billingflow.TaskTypeThumbnail,
		Units:        units,
		RequestID:    session.RequestID,
	})
	if err != nil {
		f.metrics.RecordBillingError("commit")
		f.logger.Error("failed to commit usage",
			zap.String("generation_id", job.ID.String()),
			zap.String("user_id", job.OwnerID.String()),
			zap.Int64("units", units),
			zap.Error(err),
		)
		return 0
	}
	f.metrics.RecordCreditsCommitted(charged)
	return charged
}

// chargeAmount is the precomputed cost under ChargeRequested, on every path
// including fatal runs. ChargeSucceeded bills only persisted outputs.
func (f *Finalizer) chargeAmount(session *inbound.GenerationSession, succeeded int) int64 {
	if f.config.ChargePolicy == ChargeSucceeded {
		return int64(succeeded) * f.config.CreditsPerVariant
	}
	return session.CreditsCost
}
