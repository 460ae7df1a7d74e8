package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
)

func registerBankerRoutes(r *gin.Engine, s *Server) {
	g := r.Group("/api/bankers")
	g.POST("", s.createBanker)
	g.GET("", s.listBankers)
	g.GET("/bank-names", s.listBankNames)
	g.GET("/:id", s.getBanker)
	g.PUT("/:id", s.updateBanker)
	g.DELETE("/:id", s.deleteBanker)
	g.POST("/:id/toggle", s.toggleBanker)
}

type bankerRequest struct {
	Name            string   `json:"name"`
	DisplayName     string   `json:"display_name"`
	AgentNumber     string   `json:"agent_number"`
	BankName        string   `json:"bank_name"`
	WhatsAppGroupID string   `json:"whatsapp_group_id"`
	RoutingKeywords []string `json:"routing_keywords"`
	Priority        int      `json:"priority"`
	IsActive        bool     `json:"is_active"`
}

func (b bankerRequest) toModel() *models.Banker {
	return &models.Banker{
		Name: b.Name, DisplayName: b.DisplayName, AgentNumber: b.AgentNumber, BankName: b.BankName,
		WhatsAppGroupID: b.WhatsAppGroupID, RoutingKeywords: b.RoutingKeywords, Priority: b.Priority, IsActive: b.IsActive,
	}
}

func (s *Server) createBanker(c *gin.Context) {
	var req bankerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Name == "" || req.WhatsAppGroupID == "" {
		fail(c, apperr.Validation{Msg: "name and whatsapp_group_id are required"})
		return
	}
	b := req.toModel()
	if err := s.store.Bankers.Create(c.Request.Context(), b); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

func (s *Server) listBankers(c *gin.Context) {
	list, err := s.store.Bankers.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) listBankNames(c *gin.Context) {
	names, err := s.store.Bankers.BankNames(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, names)
}

func (s *Server) getBanker(c *gin.Context) {
	b, err := s.store.Bankers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

func (s *Server) updateBanker(c *gin.Context) {
	var req bankerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	b := req.toModel()
	b.ID = c.Param("id")
	if err := s.store.Bankers.Update(c.Request.Context(), b); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

func (s *Server) deleteBanker(c *gin.Context) {
	if err := s.store.Bankers.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) toggleBanker(c *gin.Context) {
	var body struct {
		IsActive bool `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	b, err := s.store.Bankers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	b.IsActive = body.IsActive
	if err := s.store.Bankers.Update(c.Request.Context(), b); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}
