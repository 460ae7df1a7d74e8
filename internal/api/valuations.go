package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
)

// registerValuationRoutes exposes the valuation_requests table for
// operator inspection (spec §6.3 CRUD set). Requests are normally
// created by the workflow engine (spec §4.5.a); the manual create here
// exists for the CRUD set's completeness and backfill/testing use.
func registerValuationRoutes(r *gin.Engine, s *Server) {
	g := r.Group("/api/valuations")
	g.POST("", s.createValuation)
	g.GET("", s.listValuations)
	g.GET("/:id", s.getValuation)
}

type valuationRequest struct {
	RequesterGroupID    string `json:"requester_group_id"`
	Address             string `json:"address"`
	Size                string `json:"size"`
	Asking              string `json:"asking"`
	SalespersonName     string `json:"salesperson_name"`
	AgentNumberRaw      string `json:"agent_number_raw"`
	BankerNameRequested string `json:"banker_name_requested"`
}

func (s *Server) createValuation(c *gin.Context) {
	var req valuationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.RequesterGroupID == "" || req.Address == "" {
		fail(c, apperr.Validation{Msg: "requester_group_id and address are required"})
		return
	}
	v := &models.ValuationRequest{
		RequesterGroupID:    req.RequesterGroupID,
		Address:             req.Address,
		Size:                req.Size,
		Asking:              req.Asking,
		SalespersonName:     req.SalespersonName,
		AgentNumberRaw:      req.AgentNumberRaw,
		BankerNameRequested: req.BankerNameRequested,
		Status:              models.ValuationPending,
	}
	if err := s.store.Valuations.Create(c.Request.Context(), v); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

func (s *Server) listValuations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := s.store.Valuations.List(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) getValuation(c *gin.Context) {
	v, err := s.store.Valuations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}
