package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHealth always returns 200, even under degraded client/store state,
// so orchestrators don't kill the process on transient conditions (spec
// §6.3, §7 "Health endpoint never returns non-200").
func (s *Server) handleHealth(c *gin.Context) {
	storeStatus := "CONNECTED"
	if err := s.store.Ping(c.Request.Context()); err != nil {
		storeStatus = "ERROR"
	}

	redisStatus := "CONNECTED"
	if err := s.behavior.Ping(c.Request.Context()); err != nil {
		redisStatus = "ERROR"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"server":    "running",
		"whatsapp":  gin.H{"state": s.session.State()},
		"store":     storeStatus,
		"redis":     redisStatus,
		"uptime":    time.Since(s.startedAt).Seconds(),
		"memory":    gin.H{"alloc_bytes": mem.Alloc, "sys_bytes": mem.Sys},
		"timestamp": time.Now().UTC(),
	})
}

// handleStatus implements `GET /api/status` (spec §6.3).
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         s.session.State(),
		"sessionId":      s.cfg.Session.ID,
		"version":        version,
		"uptimeMinutes":  time.Since(s.startedAt).Minutes(),
		"humanBehavior":  gin.H{"hourlyCap": s.cfg.HumanBehavior.HourlyCap, "dailyCap": s.cfg.HumanBehavior.DailyCap},
		"timestamp":      time.Now().UTC(),
	})
}
