package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
)

func registerTemplateRoutes(r *gin.Engine, s *Server) {
	g := r.Group("/api/templates")
	g.POST("", s.createTemplate)
	g.GET("", s.listTemplates)
	g.GET("/categories", s.listTemplateCategories)
	g.GET("/:id", s.getTemplate)
	g.PUT("/:id", s.updateTemplate)
	g.DELETE("/:id", s.deleteTemplate)
	g.POST("/:id/duplicate", s.duplicateTemplate)
}

type templateRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

func (s *Server) createTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Name == "" || req.Content == "" {
		fail(c, apperr.Validation{Msg: "name and content are required"})
		return
	}
	t := &models.Template{Name: req.Name, Category: req.Category, Content: req.Content, ImageURL: req.ImageURL}
	if err := s.store.Templates.Create(c.Request.Context(), t); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

func (s *Server) listTemplates(c *gin.Context) {
	list, err := s.store.Templates.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) listTemplateCategories(c *gin.Context) {
	cats, err := s.store.Templates.Categories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, cats)
}

func (s *Server) getTemplate(c *gin.Context) {
	t, err := s.store.Templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

func (s *Server) updateTemplate(c *gin.Context) {
	existing, err := s.store.Templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	existing.Name, existing.Category, existing.Content, existing.ImageURL = req.Name, req.Category, req.Content, req.ImageURL
	if err := s.store.Templates.Update(c.Request.Context(), existing); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, existing)
}

func (s *Server) deleteTemplate(c *gin.Context) {
	if err := s.store.Templates.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) duplicateTemplate(c *gin.Context) {
	var body struct {
		NewName string `json:"new_name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	src, err := s.store.Templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	clone := &models.Template{Name: body.NewName, Category: src.Category, Content: src.Content, ImageURL: src.ImageURL}
	if err := s.store.Templates.Create(c.Request.Context(), clone); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, clone)
}
