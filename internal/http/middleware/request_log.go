package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aetherhq/aether-backend/internal/pkg/ctxutil"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

// RequestLogger emits one line per request, at warn for 4xx and error for 5xx.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := append([]interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency", time.Since(start),
		}, ctxutil.GetTraceData(c.Request.Context()).Fields()...)
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.String())
		}

		emit := log.Info
		if status >= 500 {
			emit = log.Error
		} else if status >= 400 {
			emit = log.Warn
		}
		emit("request", fields...)
	}
}
