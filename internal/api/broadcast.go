package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/keyquest/wa-gateway/internal/broadcast"
	"github.com/keyquest/wa-gateway/internal/models"
)

type broadcastContactRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type broadcastLaunchRequest struct {
	Contacts            []broadcastContactRequest `json:"contacts"`
	Message             string                     `json:"message"`
	ImageURL            string                     `json:"image_url"`
	DelayMode           string                     `json:"delay_mode"`
	NotificationContact string                     `json:"notification_contact"`
}

// handleBroadcastLaunch implements `POST /api/broadcast/interest-rate`
// (spec §6.3). The preflight insert runs synchronously; the paced send
// loop continues in the background.
func (s *Server) handleBroadcastLaunch(c *gin.Context) {
	var req broadcastLaunchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if len(req.Contacts) == 0 {
		badRequest(c, "contacts must not be empty")
		return
	}
	if req.Message == "" {
		badRequest(c, "message is required")
		return
	}
	delayMode := models.DelayMode(req.DelayMode)
	if delayMode != models.DelayMode1to2Min && delayMode != models.DelayMode2to3Min {
		badRequest(c, "delay_mode must be one of 1-2min, 2-3min")
		return
	}

	contacts := make([]broadcast.Contact, 0, len(req.Contacts))
	for _, rc := range req.Contacts {
		contacts = append(contacts, broadcast.Contact{ID: rc.ID, Name: rc.Name, Phone: rc.Phone})
	}

	handle, err := s.broadcast.Launch(c.Request.Context(), broadcast.Request{
		Contacts:            contacts,
		Message:             req.Message,
		ImageURL:            req.ImageURL,
		DelayMode:           delayMode,
		NotificationContact: req.NotificationContact,
	})
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, http.StatusOK, gin.H{
		"broadcast_id": handle.BroadcastID,
		"execution_id": handle.ExecutionID,
		"total":        len(contacts),
		"delay_mode":   delayMode,
	})
}

// handleBroadcastStatus implements `GET /api/broadcast/status/:id` (spec
// §6.3), accepting either a broadcast_id or a surrogate execution id.
func (s *Server) handleBroadcastStatus(c *gin.Context) {
	id := c.Param("id")
	exec, err := s.store.Broadcasts.GetExecution(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	messages, err := s.store.Broadcasts.ListMessages(c.Request.Context(), exec.ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"execution": exec,
		"messages":  messages,
		"summary": gin.H{
			"total":  exec.TotalContacts,
			"sent":   exec.SentCount,
			"failed": exec.FailedCount,
			"status": exec.Status,
		},
	})
}

// handleBroadcastHistory implements `GET /api/broadcast/history?limit&status`.
func (s *Server) handleBroadcastHistory(c *gin.Context) {
	status := c.Query("status")
	limit, _ := strconv.Atoi(c.Query("limit"))
	executions, err := s.store.Broadcasts.ListExecutions(c.Request.Context(), status, limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, executions)
}
