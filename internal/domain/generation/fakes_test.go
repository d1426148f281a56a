package generation

import (
	"context"
	"encoding/base64"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/thumbforge/server/internal/model"
	"github.com/thumbforge/server/internal/port/inbound"
	"github.com/thumbforge/server/internal/port/outbound"
	"github.com/thumbforge/server/internal/utils/billingflow"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRfake-image")

func framePayload() string {
	return base64.StdEncoding.EncodeToString(pngBytes)
}

// --- Generation store ---

type finalizeCall struct {
	status model.GenerationStatus
	errMsg *string
}

type memGenerationDB struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*model.GenerationJob
	inputs    []*model.GenerationInput
	outputs   []*model.GenerationOutput
	finalized []finalizeCall

	createErr     error
	appendOutputs func(outputs []*model.GenerationOutput) ([]*model.GenerationOutput, error)
}

func newMemGenerationDB() *memGenerationDB {
	return &memGenerationDB{jobs: make(map[uuid.UUID]*model.GenerationJob)}
}

func (m *memGenerationDB) Create(ctx context.Context, job *model.GenerationJob) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *memGenerationDB) FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*model.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.OwnerID != ownerID {
		return nil, nil
	}
	return job, nil
}

func (m *memGenerationDB) AppendInputs(ctx context.Context, jobID uuid.UUID, inputs []*model.GenerationInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, inputs...)
	return nil
}

func (m *memGenerationDB) AppendOutputs(ctx context.Context, jobID uuid.UUID, outputs []*model.GenerationOutput) ([]*model.GenerationOutput, error) {
	if m.appendOutputs != nil {
		return m.appendOutputs(outputs)
	}
	return m.store(outputs), nil
}

func (m *memGenerationDB) store(outputs []*model.GenerationOutput) []*model.GenerationOutput {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = append(m.outputs, outputs...)
	return outputs
}

func (m *memGenerationDB) hasOutput(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.outputs {
		if o.ID == id {
			return true
		}
	}
	return false
}

func (m *memGenerationDB) Finalize(ctx context.Context, jobID uuid.UUID, status model.GenerationStatus, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || !job.Status.CanTransitionTo(status) {
		return outbound.ErrInvalidTransition
	}
	job.Status = status
	job.ErrorMessage = errMsg
	m.finalized = append(m.finalized, finalizeCall{status: status, errMsg: errMsg})
	return nil
}

func (m *memGenerationDB) ListOutputs(ctx context.Context, jobID uuid.UUID) ([]*model.GenerationOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.GenerationOutput
	for _, o := range m.outputs {
		if o.GenerationID == jobID {
			out = append(out, o)
		}
	}
	return out, nil
}

// --- Templates ---

type memTemplateDB struct {
	templates map[uuid.UUID]*model.Template
}

func (m *memTemplateDB) FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*model.Template, error) {
	tpl, ok := m.templates[id]
	if !ok || tpl.OwnerID != ownerID {
		return nil, nil
	}
	return tpl, nil
}

// --- Provider ---

type fakeProvider struct {
	calls    atomic.Int32
	generate func(call int32, req *outbound.ImageGenerationRequest) ([]*outbound.ProviderImage, error)
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, req *outbound.ImageGenerationRequest) ([]*outbound.ProviderImage, error) {
	n := p.calls.Add(1)
	if p.generate == nil {
		return []*outbound.ProviderImage{{Data: pngBytes, MimeType: "image/png"}}, nil
	}
	return p.generate(n, req)
}

// --- Storage ---

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (s *memStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

// --- Credits ---

type MockCreditGate struct {
	mock.Mock
}

func (m *MockCreditGate) CheckCredits(ctx context.Context, userID uuid.UUID, amount int64) (*billingflow.CreditCheck, error) {
	args := m.Called(ctx, userID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingflow.CreditCheck), args.Error(1)
}

func (m *MockCreditGate) CommitUsage(ctx context.Context, charge *billingflow.UsageCharge) (int64, error) {
	args := m.Called(ctx, charge)
	return args.Get(0).(int64), args.Error(1)
}

// --- Event sink ---

// recordingSink keeps every event. With db set, it also records image events
// whose output row did not exist yet when the event was emitted.
type recordingSink struct {
	mu       sync.Mutex
	events   []inbound.GenerationEvent
	db       *memGenerationDB
	unstored []uuid.UUID
}

func (s *recordingSink) Emit(event inbound.GenerationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img, ok := event.(inbound.ImageEvent); ok && s.db != nil && !s.db.hasOutput(img.OutputID) {
		s.unstored = append(s.unstored, img.OutputID)
	}
	s.events = append(s.events, event)
}

func (s *recordingSink) unstoredOutputs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unstored
}

func (s *recordingSink) types() []inbound.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inbound.EventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventType())
	}
	return out
}

func (s *recordingSink) images() []inbound.ImageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inbound.ImageEvent
	for _, ev := range s.events {
		if img, ok := ev.(inbound.ImageEvent); ok {
			out = append(out, img)
		}
	}
	return out
}

func (s *recordingSink) variantErrors() []inbound.VariantErrorEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inbound.VariantErrorEvent
	for _, ev := range s.events {
		if ve, ok := ev.(inbound.VariantErrorEvent); ok {
			out = append(out, ve)
		}
	}
	return out
}

func (s *recordingSink) progress() []inbound.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inbound.ProgressEvent
	for _, ev := range s.events {
		if p, ok := ev.(inbound.ProgressEvent); ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *recordingSink) count(t inbound.EventType) int {
	n := 0
	for _, et := range s.types() {
		if et == t {
			n++
		}
	}
	return n
}

var (
	_ outbound.GenerationDatabasePort = (*memGenerationDB)(nil)
	_ outbound.TemplateDatabasePort   = (*memTemplateDB)(nil)
	_ outbound.ImageProviderPort      = (*fakeProvider)(nil)
	_ outbound.ObjectStoragePort      = (*memStorage)(nil)
	_ billingflow.CreditGate          = (*MockCreditGate)(nil)
)
