package billinghttp

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thumbforge/server/internal/domain/billing"
	"github.com/thumbforge/server/internal/utils/billingflow"
	apperrors "github.com/thumbforge/server/internal/utils/errors"
	"github.com/thumbforge/server/internal/utils/middleware"
)

// requireUser returns the authenticated user ID or writes a 401.
func requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		handleError(c, nil, apperrors.Unauthorized(""))
		return uuid.Nil, false
	}
	return userID, true
}

// handleError maps billing domain errors to HTTP responses.
func handleError(c *gin.Context, logger *zap.Logger, err error) {
	var appErr *apperrors.AppError

	switch {
	case errors.As(err, &appErr):

	case errors.Is(err, billing.ErrInvalidUser):
		appErr = apperrors.Unauthorized("")

	case errors.Is(err, billingflow.ErrBillingUnavailable):
		appErr = apperrors.BillingUnavailable(err)

	default:
		appErr = apperrors.Internal("internal server error", err)
	}

	if logger != nil && appErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("billing request failed", zap.String("code", appErr.Code), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}
