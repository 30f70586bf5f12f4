package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hiring-api/internal/handler"
	"github.com/jwalitptl/hiring-api/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last().Err
		status, resp := handler.ErrorBody(lastErr)
		if status >= 500 {
			log.Error(lastErr, "request failed",
				"request_id", c.GetString(ContextRequestID),
				"method", c.Request.Method,
				"path", c.Request.URL.Path)
		}
		c.JSON(status, resp)
	}
}
