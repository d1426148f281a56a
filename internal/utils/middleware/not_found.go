package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/thumbforge/server/internal/utils/errors"
)

// NoRoute answers unknown paths with the JSON error envelope.
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		abortWithError(c, apperrors.NotFound("route"))
	}
}

// NoMethod answers known paths hit with an unsupported method.
func NoMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		abortWithError(c, apperrors.MethodNotAllowed())
	}
}
