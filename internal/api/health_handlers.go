package api

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	startTime time.Time
	dirs      map[string]string
}

// NewHealthHandler checks readiness against the given data directories.
func NewHealthHandler(serversPath, configsPath string) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		dirs: map[string]string{
			"servers": serversPath,
			"configs": configsPath,
		},
	}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "easyservers",
		"uptime":  time.Since(h.startTime).String(),
	})
}

// ReadinessCheck handles GET /ready
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	for name, dir := range h.dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			reason := "not a directory"
			if err != nil {
				reason = err.Error()
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"reason": name + "_unavailable",
				"error":  reason,
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"uptime": time.Since(h.startTime).String(),
	})
}

// MetricsCheck handles GET /metrics (basic version)
func (h *HealthHandler) MetricsCheck(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"memory": gin.H{
			"alloc_mb": m.Alloc / 1024 / 1024,
			"sys_mb":   m.Sys / 1024 / 1024,
			"num_gc":   m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	})
}
