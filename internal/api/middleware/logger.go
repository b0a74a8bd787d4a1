package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/logging"
)

// RequestLogger logs each admin request once it completes. Server errors
// log at warn, everything else at debug.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger).Named("http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if err := c.Errors.Last(); err != nil {
			fields = append(fields, zap.Error(err.Err))
		}
		if c.Writer.Status() >= 500 {
			logger.Warn("Admin request failed", fields...)
			return
		}
		logger.Debug("Admin request", fields...)
	}
}
