package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	MemoryUsedPct float64 `json:"memory_used_pct,omitempty"`
	HostUptimeS   uint64  `json:"host_uptime_s,omitempty"`
}

// handleHealth implements GET /healthz with process and host resource
// diagnostics, grounded on the teacher's go.mod carrying
// shirou/gopsutil/v3 without ever importing it.
func (s *Server) handleHealth(c *gin.Context) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.StartedAt).Seconds(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryUsedPct = vm.UsedPercent
	}
	if uptime, err := host.Uptime(); err == nil {
		resp.HostUptimeS = uptime
	}
	c.JSON(http.StatusOK, resp)
}
