package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/sendqueue"
	"github.com/keyquest/wa-gateway/internal/session"
	"github.com/keyquest/wa-gateway/pkg/whatsapp"
)

// qrStaleAfter marks a QR code stale once it's been displayed this long
// without a fresh scan (spec §6.3 `GET /qr-code` "isStale").
const qrStaleAfter = 25 * time.Second

// handleQRCode implements `GET /qr-code` (spec §6.3).
func (s *Server) handleQRCode(c *gin.Context) {
	dataURL, generatedAt, ok := s.session.QRCode()
	var qr any
	if ok {
		qr = dataURL
	}
	isStale := ok && time.Since(generatedAt) > qrStaleAfter

	c.JSON(http.StatusOK, gin.H{
		"qr":            qr,
		"generatedAt":   generatedAt,
		"isStale":       isStale,
		"authenticated": s.session.State() == session.StateReady,
		"state":         s.session.State(),
		"timestamp":     time.Now().UTC(),
	})
}

// sendMessageRequest is the body of `POST /send-message` (spec §6.3).
type sendMessageRequest struct {
	JID      string `json:"jid"`
	GroupID  string `json:"groupId"`
	Message  string `json:"message"`
	ImageURL string `json:"imageUrl"`
	Priority string `json:"priority"`
}

func parsePriority(raw string) sendqueue.Priority {
	switch raw {
	case "critical":
		return sendqueue.Critical
	case "high":
		return sendqueue.High
	case "low":
		return sendqueue.Low
	default:
		return sendqueue.Normal
	}
}

// handleSendMessage implements `POST /send-message` (spec §6.3): 200 with
// the assigned message id, 429 on rate-limit unless priority=critical.
func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	target := req.JID
	sendType := "direct"
	if req.GroupID != "" {
		target = req.GroupID
		sendType = "group"
	}
	if target == "" {
		badRequest(c, "jid or groupId is required")
		return
	}
	if req.Message == "" && req.ImageURL == "" {
		badRequest(c, "message or imageUrl is required")
		return
	}

	priority := parsePriority(req.Priority)
	if priority != sendqueue.Critical {
		if admit := s.behavior.TryAdmit(time.Now()); !admit.Admitted {
			fail(c, apperr.RateLimited{Reason: string(admit.Reason)})
			return
		}
	}

	sendReq := sendqueue.Request{ChatID: target, Text: req.Message, Priority: priority}
	if req.ImageURL != "" {
		sendReq.Media = &whatsapp.Media{Kind: "image", URL: req.ImageURL, Caption: req.Message}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	result, err := s.sendq.Enqueue(sendReq).Wait(ctx)
	if err != nil {
		fail(c, apperr.Shutdown{Reason: err.Error()})
		return
	}
	if result.Err != nil {
		fail(c, result.Err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"messageId": result.MessageID,
		"target":    target,
		"type":      sendType,
	})
}

// handleLogout implements `POST /logout` (spec §6.3, §4.6 "logout
// sequence"). Always 200: the per-step booleans report partial failure
// (spec §7 "Logout partial failure: returns 200 with per-step success
// booleans").
func (s *Server) handleLogout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()
	details := s.session.Logout(ctx)
	c.JSON(http.StatusOK, gin.H{"success": true, "details": details})
}
