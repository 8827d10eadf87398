package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorMiddleware writes the last error a handler attached to the context as response. Handlers return
// right after attaching an error, so there is at most one.
func errorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		lastError := c.Errors.Last()
		if lastError == nil {
			return
		}
		res := newErrorResponse(lastError.Err)
		c.JSON(statusForKind(res.Code), res)
		c.Abort()
	}
}

// logMiddleware logs every api request.
func logMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		c.Next()

		var err error
		if lastError := c.Errors.Last(); lastError != nil {
			err = lastError.Err
		}
		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Info("api request failed", append(fields, zap.Error(err))...)
			return
		}
		logger.Debug("api request", fields...)
	}
}

// handle adapts a handler that returns its response body or an error. Errors are rendered by the error
// middleware.
func handle(fn func(c *gin.Context) (interface{}, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := fn(c)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, data)
	}
}
