package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/thumbforge/server/internal/model"
	"github.com/thumbforge/server/internal/port/inbound"
	"github.com/thumbforge/server/internal/port/outbound"
	"github.com/thumbforge/server/internal/utils/metrics"
	"go.uber.org/zap"
)

// Variant outcomes reported to metrics.
const (
	outcomePersisted     = "persisted"
	outcomeProviderError = "provider_error"
	outcomeInvalidOutput = "invalid_output"
	outcomeStorageError  = "storage_error"
	outcomeRecordError   = "record_error"
)

// runTally counts what a run produced. mu also serializes event emission
// so that progress.done is strictly increasing on the wire.
type runTally struct {
	mu        sync.Mutex
	done      int
	succeeded int
	failed    int
}

func (t *runTally) snapshot() (done, succeeded, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done, t.succeeded, t.failed
}

// Orchestrator fans provider calls out in fixed-size batches. All calls of a
// batch settle before the next batch starts.
type Orchestrator struct {
	provider     outbound.ImageProviderPort
	persister    *Persister
	generationDB outbound.GenerationDatabasePort
	config       *Config
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewOrchestrator creates a batch orchestrator.
func NewOrchestrator(
	provider outbound.ImageProviderPort,
	persister *Persister,
	generationDB outbound.GenerationDatabasePort,
	config *Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		provider:     provider,
		persister:    persister,
		generationDB: generationDB,
		config:       config.withDefaults(),
		metrics:      m,
		logger:       logger,
	}
}

// Run emits start, runs every batch and returns the tally. A non-nil error is a
// fatal orchestration failure (including a recovered panic); individual call
// failures are reported in-band and never returned.
func (o *Orchestrator) Run(ctx context.Context, session *inbound.GenerationSession, sink inbound.EventSink) (tally *runTally, err error) {
	tally = &runTally{}
	if r := panics.Try(func() { err = o.run(ctx, session, sink, tally) }); r != nil {
		err = r.AsError()
	}
	return tally, err
}

func (o *Orchestrator) run(ctx context.Context, session *inbound.GenerationSession, sink inbound.EventSink, tally *runTally) error {
	job := session.Job
	total := job.VariantsRequested

	sink.Emit(inbound.StartEvent{Type: inbound.EventStart, Total: total, GenerationID: job.ID})

	req := o.providerRequest(session)
	for start := 0; start < total; start += o.config.BatchSize {
		if err := ctx.Err(); err != nil {
			done, _, _ := tally.snapshot()
			o.logger.Info("generation stopped before next batch",
				zap.String("generation_id", job.ID.String()),
				zap.Int("done", done),
				zap.Int("total", total),
				zap.Error(err),
			)
			return nil
		}

		end := min(start+o.config.BatchSize, total)
		var wg conc.WaitGroup
		for callIndex := start; callIndex < end; callIndex++ {
			wg.Go(func() {
				o.runCall(ctx, session, req, callIndex, sink, tally)
			})
		}
		if r := wg.WaitAndRecover(); r != nil {
			return r.AsError()
		}
	}
	return nil
}

// runCall performs one provider call, persists what it returned and emits the
// call's events followed by exactly one progress event.
func (o *Orchestrator) runCall(
	ctx context.Context,
	session *inbound.GenerationSession,
	req *outbound.ImageGenerationRequest,
	callIndex int,
	sink inbound.EventSink,
	tally *runTally,
) {
	job := session.Job
	total := job.VariantsRequested

	var (
		events    []inbound.GenerationEvent
		succeeded int
		failed    int
	)

	images, err := o.callProvider(ctx, req)
	if err == nil && len(images) == 0 {
		err = ErrNoImages
	}
	if err != nil {
		o.logger.Warn("provider call failed",
			zap.String("generation_id", job.ID.String()),
			zap.Int("call_index", callIndex),
			zap.Error(err),
		)
		o.metrics.RecordVariant(outcomeProviderError)
		events = append(events, variantError(job.ID, callIndex, err))
		failed = 1
	} else {
		events, succeeded, failed = o.persistImages(ctx, session, callIndex, images)
	}

	tally.mu.Lock()
	defer tally.mu.Unlock()

	for _, ev := range events {
		sink.Emit(ev)
	}
	tally.done++
	tally.succeeded += succeeded
	tally.failed += failed
	sink.Emit(inbound.ProgressEvent{
		Type:         inbound.EventProgress,
		Done:         tally.done,
		Total:        total,
		GenerationID: job.ID,
	})
}

// callProvider turns a provider panic into an error for this call only.
func (o *Orchestrator) callProvider(ctx context.Context, req *outbound.ImageGenerationRequest) (images []*outbound.ProviderImage, err error) {
	start := time.Now()

	var catcher panics.Catcher
	catcher.Try(func() {
		images, err = o.provider.Generate(ctx, req)
	})
	if r := catcher.Recovered(); r != nil {
		images, err = nil, fmt.Errorf("provider call panicked: %v", r.Value)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	o.metrics.RecordProviderCall(o.provider.Name(), status, time.Since(start))
	return images, err
}

// persistImages stores each image independently, records the stored ones in a
// single batch and returns the events for this call.
func (o *Orchestrator) persistImages(
	ctx context.Context,
	session *inbound.GenerationSession,
	callIndex int,
	images []*outbound.ProviderImage,
) ([]inbound.GenerationEvent, int, int) {
	job := session.Job
	total := job.VariantsRequested

	var (
		events   []inbound.GenerationEvent
		pending  []*model.GenerationOutput
		payloads = make(map[uuid.UUID][]byte, len(images))
		failed   int
	)

	for j, img := range images {
		// The first image of a call keeps the call index; extras land past total.
		variantIndex := callIndex + j*total
		if img == nil {
			o.metrics.RecordVariant(outcomeInvalidOutput)
			events = append(events, variantError(job.ID, variantIndex, ErrInvalidOutput))
			failed++
			continue
		}

		obj, err := o.persister.Persist(ctx, PersistInput{
			OwnerID:      job.OwnerID,
			JobID:        job.ID,
			VariantIndex: variantIndex,
			Data:         img.Data,
			MimeType:     img.MimeType,
		})
		if err != nil {
			outcome := outcomeStorageError
			if isInvalidOutput(err) {
				outcome = outcomeInvalidOutput
			}
			o.logger.Warn("output not persisted",
				zap.String("generation_id", job.ID.String()),
				zap.Int("variant_index", variantIndex),
				zap.String("outcome", outcome),
				zap.Error(err),
			)
			o.metrics.RecordVariant(outcome)
			events = append(events, variantError(job.ID, variantIndex, err))
			failed++
			continue
		}

		out := &model.GenerationOutput{
			ID:           uuid.New(),
			GenerationID: job.ID,
			VariantIndex: variantIndex,
			StorageKey:   obj.Key,
			MimeType:     obj.MimeType,
			ByteSize:     obj.Size,
			ContentHash:  obj.ContentHash,
		}
		pending = append(pending, out)
		payloads[out.ID] = img.Data
	}

	if len(pending) == 0 {
		return events, 0, failed
	}

	rows, err := o.generationDB.AppendOutputs(ctx, job.ID, pending)
	if err != nil {
		keys := make([]string, 0, len(pending))
		for _, out := range pending {
			keys = append(keys, out.StorageKey)
			o.metrics.RecordVariant(outcomeRecordError)
			events = append(events, variantError(job.ID, out.VariantIndex, fmt.Errorf("record output: %w", err)))
		}
		o.logger.Error("failed to record outputs, stored objects are orphaned",
			zap.String("generation_id", job.ID.String()),
			zap.Strings("storage_keys", keys),
			zap.Error(err),
		)
		return events, 0, failed + len(pending)
	}

	for _, row := range rows {
		o.metrics.RecordVariant(outcomePersisted)
		events = append(events, inbound.ImageEvent{
			Type:         inbound.EventImage,
			Index:        row.VariantIndex,
			DataURL:      dataURL(row.MimeType, payloads[row.ID]),
			OutputID:     row.ID,
			StorageKey:   row.StorageKey,
			MimeType:     row.MimeType,
			GenerationID: job.ID,
		})
	}
	return events, len(rows), failed
}

func (o *Orchestrator) providerRequest(session *inbound.GenerationSession) *outbound.ImageGenerationRequest {
	frames := session.Frames
	if len(frames) > o.config.MaxSourceImages {
		frames = frames[:o.config.MaxSourceImages]
	}
	images := make([]outbound.ProviderSourceImage, 0, len(frames))
	for _, f := range frames {
		images = append(images, outbound.ProviderSourceImage{Data: f.Data, MimeType: f.MimeType})
	}
	return &outbound.ImageGenerationRequest{
		Prompt: session.Job.Prompt,
		Images: images,
	}
}

func variantError(jobID uuid.UUID, index int, err error) inbound.VariantErrorEvent {
	return inbound.VariantErrorEvent{
		Type:         inbound.EventVariantError,
		Index:        index,
		Error:        firstLine(err.Error()),
		GenerationID: jobID,
	}
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
