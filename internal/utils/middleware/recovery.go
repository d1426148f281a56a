package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/thumbforge/server/internal/utils/errors"
)

// Recovery returns a middleware that recovers from panics.
// If the response has already started (a stream), the connection is left to close.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("recovery")

	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", GetRequestID(c)),
					zap.Stack("stack"),
				)

				if c.Writer.Written() {
					c.Abort()
					return
				}
				abortWithError(c, apperrors.Internal("internal server error", fmt.Errorf("panic: %v", rec)))
			}
		}()
		c.Next()
	}
}
