package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
)

func registerWorkflowRoutes(r *gin.Engine, s *Server) {
	g := r.Group("/api/workflows")
	g.POST("", s.createWorkflow)
	g.GET("", s.listWorkflows)
	g.GET("/:id", s.getWorkflow)
	g.PUT("/:id", s.updateWorkflow)
	g.DELETE("/:id", s.deleteWorkflow)
	g.POST("/:id/toggle", s.toggleWorkflow)
	g.POST("/:id/duplicate", s.duplicateWorkflow)
}

type workflowRequest struct {
	Name          string         `json:"name"`
	TriggerType   string         `json:"trigger_type"`
	TriggerConfig map[string]any `json:"trigger_config"`
	IsActive      bool           `json:"is_active"`
}

func (s *Server) createWorkflow(c *gin.Context) {
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Name == "" {
		fail(c, apperr.Validation{Msg: "name is required"})
		return
	}
	w := &models.Workflow{
		ID: uuid.NewString(), Name: req.Name, TriggerType: models.TriggerType(req.TriggerType),
		TriggerConfig: req.TriggerConfig, IsActive: req.IsActive,
	}
	if err := s.store.Workflows.Create(c.Request.Context(), w); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, w)
}

func (s *Server) listWorkflows(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.Query("active"))
	list, err := s.store.Workflows.List(c.Request.Context(), activeOnly)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) getWorkflow(c *gin.Context) {
	w, err := s.store.Workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, w)
}

func (s *Server) updateWorkflow(c *gin.Context) {
	existing, err := s.store.Workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	existing.Name = req.Name
	existing.TriggerType = models.TriggerType(req.TriggerType)
	existing.TriggerConfig = req.TriggerConfig
	existing.IsActive = req.IsActive
	if err := s.store.Workflows.Update(c.Request.Context(), existing); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, existing)
}

func (s *Server) deleteWorkflow(c *gin.Context) {
	if err := s.store.Workflows.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) toggleWorkflow(c *gin.Context) {
	var body struct {
		IsActive bool `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	w, err := s.store.Workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	w.IsActive = body.IsActive
	if err := s.store.Workflows.Update(c.Request.Context(), w); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, w)
}

func (s *Server) duplicateWorkflow(c *gin.Context) {
	var body struct {
		NewName string `json:"new_name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	src, err := s.store.Workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	clone := &models.Workflow{
		ID: uuid.NewString(), Name: body.NewName, TriggerType: src.TriggerType,
		TriggerConfig: src.TriggerConfig, IsActive: false,
	}
	if err := s.store.Workflows.Create(c.Request.Context(), clone); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, clone)
}
