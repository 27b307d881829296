package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/payperplay/easyservers/internal/monitoring"
	"github.com/payperplay/easyservers/pkg/logger"
)

// RequestLogger logs all HTTP requests with structured logging and feeds the API metrics
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// Route templates keep the label set bounded
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		monitoring.RecordAPIRequest(c.Request.Method, endpoint, strconv.Itoa(status), latency)

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"status":     status,
			"latency_ms": latency.Milliseconds(),
			"ip":         c.ClientIP(),
		}
		if kind := c.Param("kind"); kind != "" {
			fields["operation"] = kind
		}

		message := "HTTP request"
		switch {
		case status >= 500:
			logger.Error(message, nil, fields)
		case status >= 400:
			logger.Warn(message, fields)
		default:
			logger.Info(message, fields)
		}
	}
}
