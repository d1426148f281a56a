package inbound

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thumbforge/server/internal/model"
)

// --- Request/Response Types ---

// GenerationInput is the body of a generation request.
type GenerationInput struct {
	Prompt             string   `json:"prompt"`
	Frames             []string `json:"frames"`
	FramesMime         string   `json:"framesMime,omitempty"`
	Variants           any      `json:"variants,omitempty"` // number or numeric string
	TemplateID         *string  `json:"templateId,omitempty"`
	ParentGenerationID *string  `json:"parentGenerationId,omitempty"`
	Source             string   `json:"source,omitempty"`
}

// SourceFrame is a decoded input frame.
type SourceFrame struct {
	Data     []byte
	MimeType string
}

// GenerationSession is a validated, admitted and recorded job ready to run.
type GenerationSession struct {
	Job         *model.GenerationJob
	Frames      []SourceFrame
	CreditsCost int64
	RequestID   string
}

// GenerationOutputView is a persisted output returned by the status endpoint.
type GenerationOutputView struct {
	ID           uuid.UUID `json:"id"`
	VariantIndex int       `json:"variantIndex"`
	StorageKey   string    `json:"storageKey"`
	MimeType     string    `json:"mimeType"`
	ByteSize     int64     `json:"byteSize"`
	ContentHash  string    `json:"contentHash"`
}

// GenerationView is the status of a job and what it produced so far.
type GenerationView struct {
	ID                uuid.UUID               `json:"id"`
	Status            model.GenerationStatus  `json:"status"`
	Prompt            string                  `json:"prompt"`
	VariantsRequested int                     `json:"variantsRequested"`
	ErrorMessage      *string                 `json:"errorMessage,omitempty"`
	TemplateID        *uuid.UUID              `json:"templateId,omitempty"`
	ParentID          *uuid.UUID              `json:"parentGenerationId,omitempty"`
	Outputs           []*GenerationOutputView `json:"outputs"`
	CreatedAt         int64                   `json:"createdAt"`
	UpdatedAt         int64                   `json:"updatedAt"`
}

// RunResult summarizes a finished orchestration.
type RunResult struct {
	Status     model.GenerationStatus
	Succeeded  int
	Failed     int
	Charged    int64
	FatalError error
}

// --- Stream Events ---

// EventType tags a stream event on the wire.
type EventType string

const (
	EventStart        EventType = "start"
	EventProgress     EventType = "progress"
	EventImage        EventType = "image"
	EventVariantError EventType = "variant_error"
	EventError        EventType = "error"
	EventDone         EventType = "done"
)

// GenerationEvent is one of the closed set of stream event structs below.
type GenerationEvent interface {
	EventType() EventType
}

// StartEvent is emitted once, first.
type StartEvent struct {
	Type         EventType `json:"type"`
	Total        int       `json:"total"`
	GenerationID uuid.UUID `json:"generationId"`
}

// ProgressEvent is emitted once per settled provider call.
type ProgressEvent struct {
	Type         EventType `json:"type"`
	Done         int       `json:"done"`
	Total        int       `json:"total"`
	GenerationID uuid.UUID `json:"generationId"`
}

// ImageEvent carries one persisted image.
type ImageEvent struct {
	Type         EventType `json:"type"`
	Index        int       `json:"index"`
	DataURL      string    `json:"dataUrl"`
	OutputID     uuid.UUID `json:"outputId"`
	StorageKey   string    `json:"storageKey"`
	MimeType     string    `json:"mimeType"`
	GenerationID uuid.UUID `json:"generationId"`
}

// VariantErrorEvent reports an isolated per-call or per-image failure.
type VariantErrorEvent struct {
	Type         EventType `json:"type"`
	Index        int       `json:"index"`
	Error        string    `json:"error"`
	GenerationID uuid.UUID `json:"generationId"`
}

// ErrorEvent reports a fatal orchestration failure.
type ErrorEvent struct {
	Type         EventType `json:"type"`
	Message      string    `json:"message"`
	GenerationID uuid.UUID `json:"generationId"`
}

// DoneEvent closes every stream.
type DoneEvent struct {
	Type         EventType `json:"type"`
	GenerationID uuid.UUID `json:"generationId"`
}

func (StartEvent) EventType() EventType        { return EventStart }
func (ProgressEvent) EventType() EventType     { return EventProgress }
func (ImageEvent) EventType() EventType        { return EventImage }
func (VariantErrorEvent) EventType() EventType { return EventVariantError }
func (ErrorEvent) EventType() EventType        { return EventError }
func (DoneEvent) EventType() EventType         { return EventDone }

// EventSink receives orchestration events in emission order.
type EventSink interface {
	Emit(event GenerationEvent)
}

// --- Domain Interface ---

// GenerationDomain defines the generation domain service interface.
type GenerationDomain interface {
	// Start validates the request, checks credits and records a running job.
	Start(ctx context.Context, ownerID uuid.UUID, input *GenerationInput) (*GenerationSession, error)

	// Run executes the job, emitting events to sink, and finalizes it.
	Run(ctx context.Context, session *GenerationSession, sink EventSink) *RunResult

	// GetGeneration returns a job owned by ownerID with its outputs.
	GetGeneration(ctx context.Context, ownerID, jobID uuid.UUID) (*GenerationView, error)
}

// --- HTTP Port Interfaces ---

// GenerationHttpPort defines generation HTTP handlers.
type GenerationHttpPort interface {
	// CreateGeneration streams a new generation as NDJSON.
	CreateGeneration(c *gin.Context)

	// GetGeneration returns the status of a generation.
	GetGeneration(c *gin.Context)
}
