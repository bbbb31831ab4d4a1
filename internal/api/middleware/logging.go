package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LoggingMiddleware returns a gin.HandlerFunc logging one line per request.
// The tenant header is included so per-tenant traffic can be filtered in the
// aggregated logs.
func LoggingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		fields := logrus.Fields{
			"client_ip":     param.ClientIP,
			"method":        param.Method,
			"path":          param.Path,
			"status_code":   param.StatusCode,
			"latency":       param.Latency,
			"user_agent":    param.Request.UserAgent(),
			"error_message": param.ErrorMessage,
		}
		if tenant := param.Request.Header.Get("X-Tenant-ID"); tenant != "" {
			fields["tenant_id"] = tenant
		}
		logger.WithFields(fields).Info("HTTP request")

		return ""
	})
}
