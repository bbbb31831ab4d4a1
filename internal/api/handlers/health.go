package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/opsai-platform/analytics-backend-go/pkg/utils"
)

var startedAt = time.Now()

// Health reports process liveness plus basic system stats.
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	dbStatus := "ok"
	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			status = "degraded"
			dbStatus = err.Error()
		}
	}

	system := gin.H{}
	if vm, err := mem.VirtualMemory(); err == nil {
		system["memory_used_percent"] = vm.UsedPercent
	}
	if uptime, err := host.Uptime(); err == nil {
		system["host_uptime_seconds"] = uptime
	}

	payload := gin.H{
		"status":         status,
		"database":       dbStatus,
		"uptime_seconds": int64(time.Since(startedAt).Seconds()),
		"system":         system,
		"websocket":      h.hub.Stats(),
	}

	if status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, utils.Response{
			Success:   false,
			Data:      payload,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	utils.SendSuccess(c, payload)
}
