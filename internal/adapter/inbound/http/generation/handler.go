package generationhttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thumbforge/server/internal/port/inbound"
	apperrors "github.com/thumbforge/server/internal/utils/errors"
	"github.com/thumbforge/server/internal/utils/middleware"
)

// NDJSONContentType is the media type of the generation stream.
const NDJSONContentType = "application/x-ndjson"

// Config holds generation HTTP configuration.
type Config struct {
	// HeartbeatInterval is the idle time after which a keep-alive line is written.
	HeartbeatInterval time.Duration

	// CancelOnDisconnect stops starting new batches once the client is gone.
	// By default the job runs to completion and is billed either way.
	CancelOnDisconnect bool

	// MaxBodyBytes bounds the request body. Zero means unlimited.
	MaxBodyBytes int64
}

// DefaultConfig returns default generation HTTP configuration.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval: 10 * time.Second,
		MaxBodyBytes:      32 << 20,
	}
}

// Handler implements inbound.GenerationHttpPort.
type Handler struct {
	domain inbound.GenerationDomain
	config *Config
	logger *zap.Logger
}

// NewHandler creates a new generation handler.
func NewHandler(domain inbound.GenerationDomain, config *Config, logger *zap.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		domain: domain,
		config: config,
		logger: logger.Named("generation_http"),
	}
}

// RegisterRoutes registers generation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	generations := r.Group("/generations")
	{
		generations.POST("", h.CreateGeneration)
		generations.GET("/:id", h.GetGeneration)
	}
}

// CreateGeneration handles POST /generations.
//
//	@Summary		Generate thumbnails (streaming)
//	@Description	Validates the request, checks credits and streams generation events as NDJSON
//	@Tags			Generation
//	@Accept			json
//	@Produce		application/x-ndjson
//	@Security		BearerAuth
//	@Param			request	body	inbound.GenerationInput	true	"Generation request"
//	@Success		200		"NDJSON stream of generation events"
//	@Failure		400		{object}	apperrors.ErrorResponse	"Missing data or invalid reference"
//	@Failure		401		{object}	apperrors.ErrorResponse	"Unauthorized"
//	@Failure		402		{object}	apperrors.ErrorResponse	"Insufficient credits"
//	@Failure		500		{object}	apperrors.ErrorResponse	"Internal server error"
//	@Failure		503		{object}	apperrors.ErrorResponse	"Billing unavailable"
//	@Router			/generations [post]
func (h *Handler) CreateGeneration(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	if h.config.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxBodyBytes)
	}

	var in inbound.GenerationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, h.logger, err)
			return
		}
		respondError(c, h.logger, apperrors.BadRequest("request body must be a JSON object"))
		return
	}

	session, err := h.domain.Start(c.Request.Context(), userID, &in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// From here on the response is a 200 stream; failures are reported in-band.
	c.Header("Content-Type", NDJSONContentType)
	c.Header("Cache-Control", "no-store")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	stream := NewStream(c.Writer, h.logger.With(zap.String("generation_id", session.Job.ID.String())))
	stream.Flush()
	stopHeartbeat := stream.StartHeartbeat(h.config.HeartbeatInterval)
	defer stopHeartbeat()

	runCtx := c.Request.Context()
	if !h.config.CancelOnDisconnect {
		runCtx = context.WithoutCancel(runCtx)
	}

	result := h.domain.Run(runCtx, session, stream)
	if err := stream.Err(); err != nil {
		h.logger.Info("generation finished after client disconnect",
			zap.String("generation_id", session.Job.ID.String()),
			zap.String("status", string(result.Status)),
			zap.Int("succeeded", result.Succeeded),
		)
	}
}

// GetGeneration handles GET /generations/:id.
//
//	@Summary		Get generation
//	@Description	Returns the status of a generation and its persisted outputs
//	@Tags			Generation
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Generation ID"
//	@Success		200	{object}	inbound.GenerationView
//	@Failure		400	{object}	apperrors.ErrorResponse	"Invalid ID"
//	@Failure		401	{object}	apperrors.ErrorResponse	"Unauthorized"
//	@Failure		404	{object}	apperrors.ErrorResponse	"Not found"
//	@Router			/generations/{id} [get]
func (h *Handler) GetGeneration(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, apperrors.Invalid("INVALID_ID", "invalid generation id", err))
		return
	}

	view, err := h.domain.GetGeneration(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		respondError(c, h.logger, apperrors.Unauthorized(""))
		return uuid.Nil, false
	}
	return userID, true
}

// Compile-time interface check
var _ inbound.GenerationHttpPort = (*Handler)(nil)
