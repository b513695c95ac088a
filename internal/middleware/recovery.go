package middleware

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"meetassist-backend/pkg/logger"
	"meetassist-backend/pkg/response"

	"go.uber.org/zap"
)

// Recovery recovers from panics and returns 500 error
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered",
					zap.Any("panic", err),
					zap.String("path", c.Request.URL.Path),
					zap.ByteString("stack", debug.Stack()))

				response.InternalError(c, "Internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
