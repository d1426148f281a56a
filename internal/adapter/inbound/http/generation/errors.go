package generationhttp

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thumbforge/server/internal/domain/generation"
	"github.com/thumbforge/server/internal/utils/billingflow"
	apperrors "github.com/thumbforge/server/internal/utils/errors"
)

// toAppError maps generation domain errors to HTTP errors.
func toAppError(err error) *apperrors.AppError {
	var (
		appErr   *apperrors.AppError
		denied   *generation.CreditDeniedError
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.As(err, &appErr):
		return appErr

	case errors.As(err, &tooLarge):
		return apperrors.NewAppError("PAYLOAD_TOO_LARGE", "request body is too large", http.StatusRequestEntityTooLarge, err)

	case errors.As(err, &denied):
		return apperrors.InsufficientCredits(denied.Balance, denied.Required)

	case errors.Is(err, generation.ErrInvalidFrame):
		return apperrors.Invalid("MISSING_DATA", "frames must be base64 image data", err).
			WithDetails(map[string]any{"reason": err.Error()})

	case errors.Is(err, generation.ErrMissingData):
		return apperrors.Invalid("MISSING_DATA", "prompt and frames are required", err)

	case errors.Is(err, generation.ErrInvalidTemplateID):
		return apperrors.Invalid("INVALID_TEMPLATE_ID", "template not found", err)

	case errors.Is(err, generation.ErrInvalidParentID):
		return apperrors.Invalid("INVALID_PARENT_ID", "parent generation not found", err)

	case errors.Is(err, billingflow.ErrBillingUnavailable):
		return apperrors.BillingUnavailable(err)

	case errors.Is(err, generation.ErrNotConfigured):
		return apperrors.Misconfigured("generation is not configured on this server")

	case errors.Is(err, generation.ErrGenerationNotFound):
		return apperrors.NotFound("generation")

	default:
		return apperrors.Internal("internal server error", err)
	}
}

// respondError writes err as a JSON error response. Server-side failures are logged.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	appErr := toAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("code", appErr.Code),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}
